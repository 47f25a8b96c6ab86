package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cachetier"

// Guard outcomes.
const (
	OutcomeHit         = "hit"
	OutcomeNegativeHit = "negative_hit"
	OutcomeFiltered    = "filtered"
	OutcomeRecheckHit  = "recheck_hit"
	OutcomeFetched     = "fetched"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

// Lock outcomes.
const (
	LockAcquired = "acquired"
	LockCanceled = "canceled"
	LockTimeout  = "timeout"
	LockError    = "error"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	guardRequests *prometheus.CounterVec
	storeQueries  prometheus.Counter
	lockAcquires  *prometheus.CounterVec
	lockWait      *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		guardRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "requests_total",
			Help:      "GetOrFetch calls by outcome.",
		}, []string{"outcome"}),
		storeQueries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "store_queries_total",
			Help:      "Queries sent to the backing store.",
		}),
		lockAcquires: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "acquires_total",
			Help:      "Lock acquisition attempts by backend and outcome.",
		}, []string{"backend", "outcome"}),
		lockWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for a lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"backend"}),
	}
}

// GuardOutcome counts one GetOrFetch result.
func (m *Metrics) GuardOutcome(outcome string) {
	if m == nil {
		return
	}
	m.guardRequests.WithLabelValues(outcome).Inc()
}

// StoreQuery counts one backing store query.
func (m *Metrics) StoreQuery() {
	if m == nil {
		return
	}
	m.storeQueries.Inc()
}

// LockAcquire records one acquisition attempt and how long it waited.
func (m *Metrics) LockAcquire(backend, outcome string, wait time.Duration) {
	if m == nil {
		return
	}
	m.lockAcquires.WithLabelValues(backend, outcome).Inc()
	m.lockWait.WithLabelValues(backend).Observe(wait.Seconds())
}
