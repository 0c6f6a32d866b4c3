package cache

import (
	"fmt"
	"sync"

	"github.com/smallbiznis/flashsale/internal/observability/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Rebuilder runs fire-and-forget rebuild tasks on a bounded pool.
type Rebuilder struct {
	mu     sync.RWMutex
	closed bool
	group  errgroup.Group

	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRebuilder(workers int, log *zap.Logger, m *metrics.Metrics) *Rebuilder {
	if workers <= 0 {
		workers = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := &Rebuilder{
		log:     log.Named("cache.rebuilder"),
		metrics: m,
	}
	r.group.SetLimit(workers)
	return r
}

// Submit schedules task without blocking. It reports false when the pool is
// saturated or closed; the task is not run in that case.
func (r *Rebuilder) Submit(key string, task func() error) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}

	return r.group.TryGo(func() error {
		if err := runRecovered(task); err != nil {
			r.metrics.IncCacheRebuild(metrics.RebuildFailed)
			r.log.Warn("cache rebuild failed", zap.String("key", key), zap.Error(err))
			return nil
		}
		r.metrics.IncCacheRebuild(metrics.RebuildCompleted)
		return nil
	})
}

// Close rejects new tasks and waits for in-flight rebuilds.
func (r *Rebuilder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	_ = r.group.Wait()
}

// runRecovered turns a panicking task into an error so one bad rebuild cannot
// take the process down.
func runRecovered(task func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rebuild panicked: %v", rec)
		}
	}()
	return task()
}
