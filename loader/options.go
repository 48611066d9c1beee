package loader

import (
	"log/slog"

	"github.com/IntegraSac-Oficial/entityload/breaker"
	"github.com/IntegraSac-Oficial/entityload/cache"
	"github.com/IntegraSac-Oficial/entityload/metrics"
	"github.com/IntegraSac-Oficial/entityload/priority"
	"github.com/IntegraSac-Oficial/entityload/ratelimit"
	"github.com/IntegraSac-Oficial/entityload/retry"
	"github.com/IntegraSac-Oficial/entityload/tracing"
)

// Option configures a Loader.
type Option func(*Loader)

// WithPriorityTable replaces the default static priority table.
func WithPriorityTable(t *priority.Table) Option {
	return func(l *Loader) {
		if t != nil {
			l.table = t
		}
	}
}

// WithRetry sets the retry policy wrapped around every remote fetch.
func WithRetry(cfg retry.Config) Option {
	return func(l *Loader) {
		l.retry = cfg
	}
}

// WithBreakers guards fetches with per-entity circuit breakers.
func WithBreakers(g *breaker.Group) Option {
	return func(l *Loader) {
		l.breakers = g
	}
}

// WithRateLimiter paces remote fetches.
func WithRateLimiter(rl *ratelimit.Limiter) Option {
	return func(l *Loader) {
		l.limiter = rl
	}
}

// WithTracer records spans for loads, fetches and batches.
func WithTracer(t *tracing.Tracer) Option {
	return func(l *Loader) {
		l.tracer = t
	}
}

// WithMetrics records fetch and fallback counters.
func WithMetrics(m *metrics.Collector) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// ErrorHandlerFunc turns a load failure into the records returned to the
// caller.
type ErrorHandlerFunc func(err error) []any

// loadOptions are the per-call settings of LoadEntityData.
type loadOptions struct {
	forceRefresh      bool
	expiry            cache.Tier
	priority          priority.Level
	explicitPriority  bool
	fallbackToExpired bool
	errorHandler      ErrorHandlerFunc
}

// LoadOption configures one LoadEntityData call.
type LoadOption func(*loadOptions)

// ForceRefresh skips the initial cache read and the re-check after
// admission; the entity is always fetched.
func ForceRefresh() LoadOption {
	return func(o *loadOptions) {
		o.forceRefresh = true
	}
}

// Expiry sets the freshness tier the cached entry is judged against.
// Defaults to cache.Medium.
func Expiry(t cache.Tier) LoadOption {
	return func(o *loadOptions) {
		o.expiry = t
	}
}

// Priority overrides the static priority of the entity for scheduling.
func Priority(p priority.Level) LoadOption {
	return func(o *loadOptions) {
		o.priority = p
		o.explicitPriority = true
	}
}

// FallbackToExpired controls whether a failed fetch may be answered with a
// stale cached payload. Defaults to true.
func FallbackToExpired(enabled bool) LoadOption {
	return func(o *loadOptions) {
		o.fallbackToExpired = enabled
	}
}

// ErrorHandler installs fn in place of the default failure policy. Its
// return value becomes the result and the error is absorbed. fn is not
// called when the caller's ctx is done: a cancelled or timed-out load always
// returns ctx.Err().
func ErrorHandler(fn ErrorHandlerFunc) LoadOption {
	return func(o *loadOptions) {
		o.errorHandler = fn
	}
}

func (l *Loader) resolve(entity string, opts []LoadOption) loadOptions {
	o := loadOptions{
		expiry:            cache.Medium,
		fallbackToExpired: true,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if !o.explicitPriority {
		o.priority = l.table.Of(entity)
	}
	return o
}
