// Package metrics exposes Prometheus collectors for the cache, the request
// scheduler and the load orchestrator. A nil *Collector is valid and records
// nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/IntegraSac-Oficial/entityload/breaker"
	"github.com/IntegraSac-Oficial/entityload/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "entityload"

// Fallback kinds recorded by ObserveFallback.
const (
	FallbackStale   = "stale"
	FallbackHandler = "handler"
)

// Collector groups every metric the core records.
type Collector struct {
	cacheLookups *prometheus.CounterVec
	cacheWrites  *prometheus.CounterVec
	cacheRecords *prometheus.GaugeVec

	running    prometheus.Gauge
	pending    prometheus.Gauge
	dispatched *prometheus.CounterVec
	queueWait  prometheus.Histogram

	fetches   *prometheus.CounterVec
	fallbacks *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
}

// New creates a Collector and registers it with reg. A nil reg creates
// unregistered collectors, which is handy in tests.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache freshness lookups by entity, tier and result.",
		}, []string{"entity", "tier", "result"}),
		cacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Snapshots written to the cache by entity.",
		}, []string{"entity"}),
		cacheRecords: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "records",
			Help:      "Number of records in the latest snapshot by entity.",
		}, []string{"entity"}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "running",
			Help:      "Requests currently dispatched.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "pending",
			Help:      "Requests waiting for a dispatch slot.",
		}),
		dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "dispatched_total",
			Help:      "Requests dispatched by priority.",
		}, []string{"priority"}),
		queueWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "queue_wait_seconds",
			Help:      "Time between enqueue and dispatch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "fetches_total",
			Help:      "Remote collection fetches by entity and outcome.",
		}, []string{"entity", "outcome"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "fallbacks_total",
			Help:      "Failed loads answered by a fallback, by entity and kind.",
		}, []string{"entity", "kind"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per entity (0 closed, 1 open, 2 half-open).",
		}, []string{"entity"}),
		breakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker transitions by entity and target state.",
		}, []string{"entity", "to"}),
	}
}

// ObserveLookup implements cache.Observer.
func (c *Collector) ObserveLookup(entity string, tier cache.Tier, result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(entity, tier.String(), result).Inc()
}

// ObserveWrite implements cache.Observer.
func (c *Collector) ObserveWrite(entity string, records int) {
	if c == nil {
		return
	}
	c.cacheWrites.WithLabelValues(entity).Inc()
	c.cacheRecords.WithLabelValues(entity).Set(float64(records))
}

// ObserveQueue records the scheduler's running and pending counts.
func (c *Collector) ObserveQueue(running, pending int) {
	if c == nil {
		return
	}
	c.running.Set(float64(running))
	c.pending.Set(float64(pending))
}

// ObserveDispatch records a dispatched request and how long it waited.
func (c *Collector) ObserveDispatch(priority int, wait time.Duration) {
	if c == nil {
		return
	}
	c.dispatched.WithLabelValues(strconv.Itoa(priority)).Inc()
	c.queueWait.Observe(wait.Seconds())
}

// ObserveFetch records the outcome of a remote fetch.
func (c *Collector) ObserveFetch(entity string, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.fetches.WithLabelValues(entity, outcome).Inc()
}

// ObserveFallback records a failed load that was answered by a fallback.
func (c *Collector) ObserveFallback(entity, kind string) {
	if c == nil {
		return
	}
	c.fallbacks.WithLabelValues(entity, kind).Inc()
}

// ObserveBreaker records a circuit breaker transition.
func (c *Collector) ObserveBreaker(entity string, to breaker.State) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(entity).Set(float64(to))
	c.breakerTransitions.WithLabelValues(entity, to.String()).Inc()
}
