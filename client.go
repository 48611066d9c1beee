// Package entityload loads named entity collections through a snapshot
// cache and a priority-ordered fetch scheduler.
//
// A Client answers from the cache while a snapshot is fresh, fetches it from
// a remote collection otherwise, and falls back to the last known snapshot
// when the remote side fails:
//
//	c, err := entityload.NewClient(entityload.DefaultOptions()...)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	cities, err := c.LoadEntityData(ctx, citiesColl, "City", nil)
package entityload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/IntegraSac-Oficial/entityload/breaker"
	"github.com/IntegraSac-Oficial/entityload/cache"
	"github.com/IntegraSac-Oficial/entityload/loader"
	"github.com/IntegraSac-Oficial/entityload/metrics"
	"github.com/IntegraSac-Oficial/entityload/priority"
	"github.com/IntegraSac-Oficial/entityload/ratelimit"
	"github.com/IntegraSac-Oficial/entityload/remote"
	"github.com/IntegraSac-Oficial/entityload/scheduler"
	"github.com/IntegraSac-Oficial/entityload/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// Re-exported so callers rarely need to import the loader package.
type (
	Filter     = loader.Filter
	LoadOption = loader.LoadOption
	Request    = loader.Request
	Result     = loader.Result
)

// Client wires the snapshot cache, the scheduler and the loader together.
// It is safe for concurrent use.
type Client struct {
	cache  *cache.Cache
	sched  *scheduler.Scheduler
	loader *loader.Loader
	log    *slog.Logger

	l1 *cache.L1
	l2 *cache.L2

	gatherer prometheus.Gatherer
}

// NewClient creates a Client by applying the supplied functional options on
// top of the defaults (three concurrent fetches, 100ms dispatch gap,
// in-memory snapshots, built-in priority table, no retries).
func NewClient(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	log := cfg.logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	table := cfg.table
	if cfg.tableFile != "" {
		t, err := priority.LoadFile(cfg.tableFile)
		if err != nil {
			return nil, err
		}
		table = t
	}

	cl := &Client{log: log}

	// Snapshot store: Redis or memory, optionally fronted by ristretto.
	var store cache.Store = cache.NewMemoryStore()
	if cfg.redis != nil {
		cl.l2 = cache.NewL2WithClient(redis.NewClient(cfg.redis), cache.DefaultKeyPrefix, cfg.redisTTL)
		store = cl.l2
	}
	if cfg.l1MaxCost > 0 {
		l1, err := cache.NewL1(cfg.l1MaxCost)
		if err != nil {
			cl.closeStores()
			return nil, fmt.Errorf("entityload: create L1 cache: %w", err)
		}
		cl.l1 = l1
		store = cache.NewTiered(l1, store)
	}

	var coll *metrics.Collector
	if cfg.registerer != nil {
		coll = metrics.New(cfg.registerer)
		if g, ok := cfg.registerer.(prometheus.Gatherer); ok {
			cl.gatherer = g
		}
	}

	cacheOpts := []cache.Option{cache.WithStore(store), cache.WithTTLs(cfg.ttls)}
	schedOpts := []scheduler.Option{
		scheduler.WithMaxConcurrent(cfg.maxConcurrent),
		scheduler.WithDispatchGap(cfg.dispatchGap),
		scheduler.WithLogger(log),
	}
	loaderOpts := []loader.Option{
		loader.WithPriorityTable(table),
		loader.WithLogger(log),
	}
	if coll != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(coll))
		schedOpts = append(schedOpts, scheduler.WithObserver(coll))
		loaderOpts = append(loaderOpts, loader.WithMetrics(coll))
	}
	if cfg.tracerProvider != nil {
		loaderOpts = append(loaderOpts, loader.WithTracer(tracing.New(tracing.Config{TracerProvider: cfg.tracerProvider})))
	}
	if cfg.retry != nil {
		loaderOpts = append(loaderOpts, loader.WithRetry(*cfg.retry))
	}
	if cfg.breaker != nil {
		loaderOpts = append(loaderOpts, loader.WithBreakers(breaker.NewGroup(*cfg.breaker)))
	}
	if cfg.rateLimit > 0 {
		loaderOpts = append(loaderOpts, loader.WithRateLimiter(ratelimit.NewLimiter(cfg.rateLimit, cfg.rateBurst)))
	}

	cl.cache = cache.New(cacheOpts...)
	cl.sched = scheduler.New(schedOpts...)
	cl.loader = loader.New(cl.cache, cl.sched, loaderOpts...)
	return cl, nil
}

// LoadEntityData returns the records of entity that pass filter. See
// [loader.Loader.LoadEntityData].
func (c *Client) LoadEntityData(ctx context.Context, coll remote.Collection, entity string, filter Filter, opts ...LoadOption) ([]any, error) {
	return c.loader.LoadEntityData(ctx, coll, entity, filter, opts...)
}

// LoadMultipleEntities loads a batch, critical entities first. See
// [loader.Loader.LoadMultipleEntities].
func (c *Client) LoadMultipleEntities(ctx context.Context, reqs []Request) []Result {
	return c.loader.LoadMultipleEntities(ctx, reqs)
}

// Cache returns the snapshot cache.
func (c *Client) Cache() *cache.Cache {
	return c.cache
}

// Scheduler returns the fetch scheduler.
func (c *Client) Scheduler() *scheduler.Scheduler {
	return c.sched
}

// Loader returns the underlying loader.
func (c *Client) Loader() *loader.Loader {
	return c.loader
}

// Ping checks the Redis store, if one is configured.
func (c *Client) Ping(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.Ping(ctx)
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics. It
// serves the registry passed to WithMetrics when that registry can be
// gathered, and the default registry otherwise.
func (c *Client) MetricsHandler() http.Handler {
	if c.gatherer != nil {
		return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// Close stops the scheduler, settling queued fetches with
// scheduler.ErrClosed, and releases the stores.
func (c *Client) Close() error {
	c.sched.Close()
	return c.closeStores()
}

func (c *Client) closeStores() error {
	var errs []error
	if c.l1 != nil {
		c.l1.Close()
	}
	if c.l2 != nil {
		if err := c.l2.Close(); err != nil {
			errs = append(errs, fmt.Errorf("entityload: close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
