// Package loader is the single path for obtaining entity data. It answers
// from the cache when the snapshot is fresh, otherwise schedules a fetch on
// the priority scheduler, stores the result, and on failure degrades to a
// caller-supplied handler or to the last known payload.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IntegraSac-Oficial/entityload/breaker"
	"github.com/IntegraSac-Oficial/entityload/cache"
	"github.com/IntegraSac-Oficial/entityload/contextx"
	"github.com/IntegraSac-Oficial/entityload/metrics"
	"github.com/IntegraSac-Oficial/entityload/priority"
	"github.com/IntegraSac-Oficial/entityload/ratelimit"
	"github.com/IntegraSac-Oficial/entityload/remote"
	"github.com/IntegraSac-Oficial/entityload/retry"
	"github.com/IntegraSac-Oficial/entityload/scheduler"
	"github.com/IntegraSac-Oficial/entityload/tracing"
)

// Values of the cache.result span attribute.
const (
	resultHit     = "hit"
	resultFetched = "fetched"
	resultStale   = "stale"
	resultHandled = "handled"
	resultError   = "error"
)

// Filter selects records. A nil Filter keeps everything.
type Filter func(record any) bool

// Loader coordinates the cache and the scheduler. It is safe for concurrent
// use.
type Loader struct {
	cache *cache.Cache
	sched *scheduler.Scheduler
	table *priority.Table

	retry    retry.Config
	breakers *breaker.Group
	limiter  *ratelimit.Limiter
	tracer   *tracing.Tracer
	metrics  *metrics.Collector
	log      *slog.Logger
}

// New creates a Loader over c and s.
func New(c *cache.Cache, s *scheduler.Scheduler, opts ...Option) *Loader {
	l := &Loader{
		cache: c,
		sched: s,
		table: priority.Default(),
		retry: retry.Config{MaxAttempts: 1},
		log:   slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(l)
	}
	if l.breakers != nil {
		l.breakers.Notify(l.breakerChanged)
	}
	return l
}

func (l *Loader) breakerChanged(entity string, from, to breaker.State) {
	l.log.Info("circuit breaker changed state", "entity", entity, "from", from.String(), "to", to.String())
	l.metrics.ObserveBreaker(entity, to)
}

// Cache returns the underlying cache.
func (l *Loader) Cache() *cache.Cache { return l.cache }

// Scheduler returns the underlying scheduler.
func (l *Loader) Scheduler() *scheduler.Scheduler { return l.sched }

// PriorityOf returns the static priority of entity.
func (l *Loader) PriorityOf(entity string) priority.Level {
	return l.table.Of(entity)
}

// LoadEntityData returns the records of entity, filtered by filter.
//
// A fresh cache entry is returned without involving the scheduler. Otherwise
// a fetch is scheduled under the entity's priority; once admitted it checks
// the cache again, calls coll.List, and stores the result.
//
// On failure the ErrorHandler option, if any, supplies the result. Otherwise,
// unless disabled with FallbackToExpired(false), the last cached payload is
// returned however old it is. When neither applies the original error is
// returned unchanged. Cancellation of ctx is always returned as an error.
func (l *Loader) LoadEntityData(ctx context.Context, coll remote.Collection, entity string, filter Filter, opts ...LoadOption) ([]any, error) {
	o := l.resolve(entity, opts)

	ctx, span := l.tracer.StartLoad(ctx, entity, o.priority.String(), o.expiry.String())
	recs, result, err := l.load(ctx, coll, entity, filter, o)
	span.SetAttributes(tracing.AttrCacheResult.String(result), tracing.AttrRecords.Int(len(recs)))
	tracing.End(span, err)
	return recs, err
}

func (l *Loader) load(ctx context.Context, coll remote.Collection, entity string, filter Filter, o loadOptions) ([]any, string, error) {
	if !o.forceRefresh {
		if recs, ok := l.cache.Lookup(ctx, entity, o.expiry); ok {
			return applyFilter(recs, filter), resultHit, nil
		}
	}

	out := l.sched.Enqueue(ctx, entity, int(o.priority), func(ctx context.Context) (any, error) {
		return l.fetchUnit(ctx, coll, entity, o)
	})
	v, err := out.Wait(ctx)
	if err == nil {
		recs, ok := v.([]any)
		if !ok {
			err = fmt.Errorf("%w: %T", errUnexpectedResult, v)
		} else {
			return applyFilter(recs, filter), resultFetched, nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, resultError, ctxErr
	}
	return l.degrade(ctx, entity, filter, o, err)
}

// fetchUnit runs once the scheduler admits the request.
func (l *Loader) fetchUnit(ctx context.Context, coll remote.Collection, entity string, o loadOptions) ([]any, error) {
	// Another caller may have refreshed the entry while this one was queued.
	if !o.forceRefresh {
		if recs, ok := l.cache.Lookup(ctx, entity, o.expiry); ok {
			return recs, nil
		}
	}
	if coll == nil {
		return nil, ErrNoCollection
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, span := l.tracer.StartFetch(ctx, entity)
	recs, err := retry.Do(ctx, l.retryConfig(ctx, entity), func(ctx context.Context) ([]any, error) {
		if l.breakers == nil {
			return coll.List(ctx)
		}
		return breaker.Run(ctx, l.breakers.For(entity), coll.List)
	})
	l.metrics.ObserveFetch(entity, err)
	if err == nil {
		span.SetAttributes(tracing.AttrRecords.Int(len(recs)))
	}
	tracing.End(span, err)
	if err != nil {
		return nil, err
	}

	if recs == nil {
		recs = []any{}
	}
	l.cache.Set(ctx, entity, recs)
	return recs, nil
}

// retryConfig returns the configured policy with a logging hook attached.
func (l *Loader) retryConfig(ctx context.Context, entity string) retry.Config {
	cfg := l.retry
	user := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		l.logger(ctx).Debug("retrying fetch", "entity", entity, "attempt", attempt+1, "delay", delay, "error", err)
		if user != nil {
			user(attempt, err, delay)
		}
	}
	return cfg
}

// degrade applies the failure policy to err.
func (l *Loader) degrade(ctx context.Context, entity string, filter Filter, o loadOptions, err error) ([]any, string, error) {
	log := l.logger(ctx).With("entity", entity, "priority", o.priority.String())

	if o.errorHandler != nil {
		log.Warn("load failed, using error handler", "error", err)
		l.metrics.ObserveFallback(entity, metrics.FallbackHandler)
		return o.errorHandler(err), resultHandled, nil
	}

	if o.fallbackToExpired {
		if e, ok := l.cache.Entry(ctx, entity); ok {
			log.Warn("load failed, serving stale data", "error", err, "written_at", e.WrittenAt)
			l.metrics.ObserveFallback(entity, metrics.FallbackStale)
			return applyFilter(e.Payload, filter), resultStale, nil
		}
		log.Error("load failed", "error", err, "fallback", ErrNoCacheAvailable)
		return nil, resultError, err
	}

	log.Error("load failed", "error", err)
	return nil, resultError, err
}

// logger returns the logger enriched with the batch id carried by ctx.
func (l *Loader) logger(ctx context.Context) *slog.Logger {
	if id := contextx.BatchIDFromContext(ctx); id != "" {
		return l.log.With("batch_id", id)
	}
	return l.log
}

func applyFilter(recs []any, filter Filter) []any {
	if filter == nil {
		return recs
	}
	out := make([]any, 0, len(recs))
	for _, r := range recs {
		if filter(r) {
			out = append(out, r)
		}
	}
	return out
}
