package entityload

import (
	"log/slog"
	"time"

	"github.com/IntegraSac-Oficial/entityload/breaker"
	"github.com/IntegraSac-Oficial/entityload/cache"
	"github.com/IntegraSac-Oficial/entityload/priority"
	"github.com/IntegraSac-Oficial/entityload/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Option configures a Client.
type Option func(*config)

// WithL1 puts a bounded in-process cache (ristretto) in front of the
// snapshot store. maxEntries bounds the number of snapshots it keeps; evicted
// snapshots are still served by the backing store.
func WithL1(maxEntries int64) Option {
	return func(c *config) {
		c.l1MaxCost = maxEntries
	}
}

// WithRedis stores snapshots in Redis instead of process memory, so they
// survive restarts and are shared between instances.
func WithRedis(addr, password string, db int) Option {
	return func(c *config) {
		c.redis = &redis.Options{
			Addr:            addr,
			Password:        password,
			DB:              db,
			Protocol:        2,
			DisableIdentity: true,
		}
	}
}

// WithRedisRetention bounds how long Redis keeps a snapshot. Zero, the
// default, keeps it until it is overwritten.
func WithRedisRetention(d time.Duration) Option {
	return func(c *config) {
		c.redisTTL = d
	}
}

// WithTTLs overrides the TTL of individual expiry tiers.
func WithTTLs(ttls cache.TTLs) Option {
	return func(c *config) {
		c.ttls = ttls
	}
}

// WithMaxConcurrent bounds the number of remote fetches in flight.
func WithMaxConcurrent(n int) Option {
	return func(c *config) {
		c.maxConcurrent = n
	}
}

// WithDispatchGap sets the pause between a fetch completing and the next
// dispatch decision.
func WithDispatchGap(d time.Duration) Option {
	return func(c *config) {
		c.dispatchGap = d
	}
}

// WithPriorityTable replaces the built-in entity priority table.
func WithPriorityTable(t *priority.Table) Option {
	return func(c *config) {
		c.table = t
	}
}

// WithPriorityFile loads the entity priority table from a YAML file when the
// client is created.
func WithPriorityFile(path string) Option {
	return func(c *config) {
		c.tableFile = path
	}
}

// WithRetry retries failed remote fetches according to cfg.
func WithRetry(cfg retry.Config) Option {
	return func(c *config) {
		c.retry = &cfg
	}
}

// WithBreaker guards every entity's fetches with its own circuit breaker.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) {
		c.breaker = &cfg
	}
}

// WithRateLimit caps remote fetches at rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.rateLimit = rps
		c.rateBurst = burst
	}
}

// WithMetrics registers the client's Prometheus collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}

// WithTracing records OpenTelemetry spans through tp.
func WithTracing(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.tracerProvider = tp
	}
}

// WithLogger sets the structured logger shared by all components.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}
