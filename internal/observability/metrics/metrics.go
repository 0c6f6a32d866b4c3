package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	CacheStrategyPassThrough   = "pass_through"
	CacheStrategyLogicalExpire = "logical_expire"

	CacheResultHit     = "hit"
	CacheResultNullHit = "null_hit"
	CacheResultMiss    = "miss"
	CacheResultAbsent  = "absent"
	CacheResultStale   = "stale"

	RebuildSubmitted = "submitted"
	RebuildSkipped   = "skipped"
	RebuildFailed    = "failed"
	RebuildCompleted = "completed"

	LockAcquired  = "acquired"
	LockContended = "contended"
	LockError     = "error"

	EntryResultPersisted = "persisted"
	EntryResultDuplicate = "duplicate"
	EntryResultFailed    = "failed"
)

// Config labels every series with the service identity.
type Config struct {
	ServiceName string
	Environment string
}

// Metrics captures the hot-path health signals of the flash sale layer.
type Metrics struct {
	cacheLookups    *prometheus.CounterVec
	cacheRebuilds   *prometheus.CounterVec
	lockAcquires    *prometheus.CounterVec
	admissions      *prometheus.CounterVec
	consumerEntries *prometheus.CounterVec
	consumerModes   *prometheus.CounterVec
	entryDuration   *prometheus.HistogramVec
	idsIssued       *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered on the default registerer.
func Default() *Metrics {
	return WithConfig(Config{})
}

// WithConfig returns the process-wide metrics using config labels on first use.
func WithConfig(cfg Config) *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer, cfg)
	})
	return defaultMetrics
}

// ResetDefaultForTest resets the singleton for tests.
func ResetDefaultForTest() {
	defaultOnce = sync.Once{}
	defaultMetrics = nil
}

// New registers a fresh set of collectors on registerer.
func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "flashsale"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashsale_cache_lookups_total",
			Help:        "Cache lookups by strategy and result.",
			ConstLabels: constLabels,
		}, []string{"strategy", "result"}),
		cacheRebuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashsale_cache_rebuilds_total",
			Help:        "Logical-expiry rebuild tasks by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		lockAcquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashsale_lock_acquires_total",
			Help:        "Distributed lock acquisition attempts by result.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashsale_admissions_total",
			Help:        "Admission decisions by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		consumerEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashsale_order_entries_total",
			Help:        "Order stream entries handled by consumer mode and result.",
			ConstLabels: constLabels,
		}, []string{"mode", "result"}),
		consumerModes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashsale_order_consumer_transitions_total",
			Help:        "Order consumer mode transitions.",
			ConstLabels: constLabels,
		}, []string{"from", "to"}),
		entryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "flashsale_order_entry_duration_seconds",
			Help:        "Time to persist and acknowledge one order entry.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"mode"}),
		idsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashsale_ids_issued_total",
			Help:        "Identifiers issued by scope.",
			ConstLabels: constLabels,
		}, []string{"scope"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "flashsale_http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: constLabels,
		}, []string{"route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "flashsale_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			ConstLabels: constLabels,
		}, []string{"route"}),
	}

	registerer.MustRegister(
		m.cacheLookups,
		m.cacheRebuilds,
		m.lockAcquires,
		m.admissions,
		m.consumerEntries,
		m.consumerModes,
		m.entryDuration,
		m.idsIssued,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) IncCacheLookup(strategy, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(strategy, result).Inc()
}

func (m *Metrics) IncCacheRebuild(result string) {
	if m == nil {
		return
	}
	m.cacheRebuilds.WithLabelValues(result).Inc()
}

func (m *Metrics) IncLockAcquire(result string) {
	if m == nil {
		return
	}
	m.lockAcquires.WithLabelValues(result).Inc()
}

func (m *Metrics) IncAdmission(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncConsumerEntry(mode, result string) {
	if m == nil {
		return
	}
	m.consumerEntries.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) IncConsumerTransition(from, to string) {
	if m == nil {
		return
	}
	m.consumerModes.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveEntryDuration(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.entryDuration.WithLabelValues(mode).Observe(d.Seconds())
}

func (m *Metrics) IncIDIssued(scope string) {
	if m == nil {
		return
	}
	m.idsIssued.WithLabelValues(scope).Inc()
}

func (m *Metrics) ObserveHTTPRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
