package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/flashsale/internal/kvstore"
	"github.com/smallbiznis/flashsale/internal/observability/metrics"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrEmptyResource = errors.New("lock_resource_empty")
	ErrInvalidTTL    = errors.New("lock_ttl_invalid")
)

// Locker is a single-attempt, non-reentrant lock over the key-value store.
// Holders are identified by a token unique to this process and acquisition.
type Locker struct {
	client    redis.UniversalClient
	script    *redis.Script
	processID string
	metrics   *metrics.Metrics
}

func NewLocker(client redis.UniversalClient, m *metrics.Metrics) *Locker {
	return &Locker{
		client:    client,
		script:    redis.NewScript(releaseScript),
		processID: uuid.NewString(),
		metrics:   m,
	}
}

// TryLock attempts SET lock:<resource> token NX PX ttl once. Contention is
// reported as ok=false with a nil error.
func (l *Locker) TryLock(ctx context.Context, resource string, ttl time.Duration) (string, bool, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return "", false, ErrEmptyResource
	}
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}

	token := l.processID + "-" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, kvstore.LockKey(resource), token, ttl).Result()
	if err != nil {
		l.metrics.IncLockAcquire(metrics.LockError)
		return "", false, err
	}
	if !ok {
		l.metrics.IncLockAcquire(metrics.LockContended)
		return "", false, nil
	}
	l.metrics.IncLockAcquire(metrics.LockAcquired)
	return token, true, nil
}

// Release deletes the lock only while it is still held by token.
func (l *Locker) Release(ctx context.Context, resource, token string) error {
	resource = strings.TrimSpace(resource)
	if resource == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{kvstore.LockKey(resource)}, token).Err()
}
