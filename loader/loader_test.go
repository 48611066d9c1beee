package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IntegraSac-Oficial/entityload/breaker"
	"github.com/IntegraSac-Oficial/entityload/cache"
	"github.com/IntegraSac-Oficial/entityload/metrics"
	"github.com/IntegraSac-Oficial/entityload/priority"
	"github.com/IntegraSac-Oficial/entityload/remote"
	"github.com/IntegraSac-Oficial/entityload/retry"
	"github.com/IntegraSac-Oficial/entityload/scheduler"
	"github.com/IntegraSac-Oficial/entityload/tracing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var errBackend = errors.New("backend unavailable")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// counting is a Collection that counts calls and can be switched to fail.
type counting struct {
	calls   atomic.Int32
	fail    atomic.Bool
	records []any
}

func (c *counting) List(context.Context) ([]any, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errBackend
	}
	return append([]any(nil), c.records...), nil
}

type fixture struct {
	loader *Loader
	cache  *cache.Cache
	sched  *scheduler.Scheduler
	clock  *clock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clk := newClock()
	c := cache.New(cache.WithClock(clk.Now))
	s := scheduler.New(scheduler.WithMaxConcurrent(3), scheduler.WithDispatchGap(0))
	t.Cleanup(s.Close)
	return &fixture{
		loader: New(c, s, opts...),
		cache:  c,
		sched:  s,
		clock:  clk,
	}
}

func TestFreshHitSkipsCollaboratorAndScheduler(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.cache.Set(ctx, "City", []any{"Lisbon", "Porto"})

	// Saturate the scheduler; a fresh hit must not wait for a slot.
	release := make(chan struct{})
	defer close(release)
	for range f.sched.MaxConcurrent() {
		f.sched.Enqueue(ctx, "blocker", 0, func(context.Context) (any, error) {
			<-release
			return nil, nil
		})
	}

	coll := &counting{}
	recs, err := f.loader.LoadEntityData(ctx, coll, "City", nil)
	if err != nil {
		t.Fatalf("LoadEntityData: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %v", recs)
	}
	if n := coll.calls.Load(); n != 0 {
		t.Fatalf("collaborator called %d times on a fresh hit", n)
	}
}

func TestMissFetchesAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	coll := &counting{records: []any{1, 2, 3, 4}}

	even := func(r any) bool { return r.(int)%2 == 0 }
	recs, err := f.loader.LoadEntityData(ctx, coll, "Property", even)
	if err != nil {
		t.Fatalf("LoadEntityData: %v", err)
	}
	if len(recs) != 2 || recs[0] != 2 || recs[1] != 4 {
		t.Fatalf("filtered result = %v", recs)
	}

	// The cache holds the unfiltered payload.
	if got := f.cache.Get(ctx, "Property", cache.Medium); len(got) != 4 {
		t.Fatalf("cached payload = %v", got)
	}

	// Second call is a hit.
	if _, err := f.loader.LoadEntityData(ctx, coll, "Property", nil); err != nil {
		t.Fatal(err)
	}
	if n := coll.calls.Load(); n != 1 {
		t.Fatalf("collaborator called %d times, want 1", n)
	}
}

func TestExpiryTierIsPerCall(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	coll := &counting{records: []any{"x"}}

	if _, err := f.loader.LoadEntityData(ctx, coll, "Tour", nil); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Minute)

	if _, err := f.loader.LoadEntityData(ctx, coll, "Tour", nil, Expiry(cache.Long)); err != nil {
		t.Fatal(err)
	}
	if n := coll.calls.Load(); n != 1 {
		t.Fatalf("Long tier should still be fresh, calls=%d", n)
	}

	if _, err := f.loader.LoadEntityData(ctx, coll, "Tour", nil, Expiry(cache.Short)); err != nil {
		t.Fatal(err)
	}
	if n := coll.calls.Load(); n != 2 {
		t.Fatalf("Short tier should refetch, calls=%d", n)
	}
}

func TestQueuedDuplicateRechecksCache(t *testing.T) {
	clk := newClock()
	c := cache.New(cache.WithClock(clk.Now))
	s := scheduler.New(scheduler.WithMaxConcurrent(1), scheduler.WithDispatchGap(0))
	t.Cleanup(s.Close)
	l := New(c, s)
	ctx := t.Context()

	release := make(chan struct{})
	s.Enqueue(ctx, "blocker", int(priority.Critical), func(context.Context) (any, error) {
		<-release
		return nil, nil
	})

	coll := &counting{records: []any{"a"}}
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.LoadEntityData(ctx, coll, "Event", nil); err != nil {
				t.Errorf("LoadEntityData: %v", err)
			}
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Pending() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("loads never queued")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if n := coll.calls.Load(); n != 1 {
		t.Fatalf("collaborator called %d times, want 1 (second unit must hit the refreshed cache)", n)
	}
}

func TestForceRefreshBypassesCache(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	f.cache.Set(ctx, "City", []any{"old"})

	coll := &counting{records: []any{"new"}}
	recs, err := f.loader.LoadEntityData(ctx, coll, "City", nil, ForceRefresh())
	if err != nil {
		t.Fatal(err)
	}
	if recs[0] != "new" || coll.calls.Load() != 1 {
		t.Fatalf("got %v after %d calls", recs, coll.calls.Load())
	}
	if got := f.cache.Get(ctx, "City", cache.Medium); got[0] != "new" {
		t.Fatalf("cache not updated: %v", got)
	}
}

func TestFailureFallsBackToLastPayload(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	coll := &counting{records: []any{"Lisbon", "Faro"}}

	if _, err := f.loader.LoadEntityData(ctx, coll, "City", nil); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(48 * time.Hour)
	coll.fail.Store(true)

	recs, err := f.loader.LoadEntityData(ctx, coll, "City", func(r any) bool { return r == "Faro" })
	if err != nil {
		t.Fatalf("expected stale fallback, got %v", err)
	}
	if len(recs) != 1 || recs[0] != "Faro" {
		t.Fatalf("got %v", recs)
	}
	if n := coll.calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestFailureWithoutFallbackReturnsOriginalError(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	coll := &counting{records: []any{"x"}}

	if _, err := f.loader.LoadEntityData(ctx, coll, "City", nil); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)
	coll.fail.Store(true)

	_, err := f.loader.LoadEntityData(ctx, coll, "City", nil, FallbackToExpired(false))
	if err != errBackend {
		t.Fatalf("expected the original error, got %v", err)
	}
}

func TestFailureWithEmptyCacheReturnsOriginalError(t *testing.T) {
	f := newFixture(t)
	coll := &counting{}
	coll.fail.Store(true)

	recs, err := f.loader.LoadEntityData(t.Context(), coll, "Review", nil)
	if err != errBackend {
		t.Fatalf("expected the original error, got %v", err)
	}
	if recs != nil {
		t.Fatalf("expected no records, got %v", recs)
	}
}

func TestErrorHandlerAbsorbsFailure(t *testing.T) {
	reg := newRegistry(t)
	f := newFixture(t, WithMetrics(metrics.New(reg)))
	ctx := t.Context()
	coll := &counting{records: []any{"cached"}}

	if _, err := f.loader.LoadEntityData(ctx, coll, "Like", nil); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)
	coll.fail.Store(true)

	var seen error
	recs, err := f.loader.LoadEntityData(ctx, coll, "Like", nil, ErrorHandler(func(err error) []any {
		seen = err
		return []any{"placeholder"}
	}))
	if err != nil {
		t.Fatalf("handler must absorb the error, got %v", err)
	}
	if !errors.Is(seen, errBackend) {
		t.Fatalf("handler received %v", seen)
	}
	if len(recs) != 1 || recs[0] != "placeholder" {
		t.Fatalf("handler result must win over stale data, got %v", recs)
	}
	if got := countMetric(t, reg, "entityload_loader_fallbacks_total"); got != 1 {
		t.Fatalf("fallbacks_total = %v, want 1", got)
	}
}

func TestRetryPolicy(t *testing.T) {
	f := newFixture(t, WithRetry(retry.Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		RetryIf:     func(err error) bool { return errors.Is(err, errBackend) },
	}))

	var calls atomic.Int32
	coll := remote.CollectionFunc(func(context.Context) ([]any, error) {
		if calls.Add(1) < 3 {
			return nil, errBackend
		}
		return []any{"ok"}, nil
	})

	recs, err := f.loader.LoadEntityData(t.Context(), coll, "Attraction", nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if recs[0] != "ok" || calls.Load() != 3 {
		t.Fatalf("got %v after %d calls", recs, calls.Load())
	}
}

func TestBreakerFailsFastThenFallsBack(t *testing.T) {
	reg := newRegistry(t)
	f := newFixture(t,
		WithMetrics(metrics.New(reg)),
		WithBreakers(breaker.NewGroup(breaker.Config{
			FailureThreshold: 1,
			OpenTimeout:      time.Hour,
		})),
	)
	ctx := t.Context()
	coll := &counting{records: []any{"v1"}}

	if _, err := f.loader.LoadEntityData(ctx, coll, "Comment", nil); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)
	coll.fail.Store(true)

	// First failure trips the breaker.
	if _, err := f.loader.LoadEntityData(ctx, coll, "Comment", nil, FallbackToExpired(false)); err != errBackend {
		t.Fatalf("got %v", err)
	}
	// Second load is refused without calling the collaborator.
	_, err := f.loader.LoadEntityData(ctx, coll, "Comment", nil, FallbackToExpired(false))
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if n := coll.calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
	// With fallback the stale payload is served.
	recs, err := f.loader.LoadEntityData(ctx, coll, "Comment", nil)
	if err != nil || recs[0] != "v1" {
		t.Fatalf("got %v, %v", recs, err)
	}
	if got := countMetric(t, reg, "entityload_breaker_transitions_total"); got != 1 {
		t.Fatalf("breaker transitions = %v, want 1", got)
	}
}

func TestNilCollection(t *testing.T) {
	f := newFixture(t)
	if _, err := f.loader.LoadEntityData(t.Context(), nil, "City", nil); !errors.Is(err, ErrNoCollection) {
		t.Fatalf("expected ErrNoCollection, got %v", err)
	}
}

func TestCancelledContextIsNotMaskedByFallback(t *testing.T) {
	f := newFixture(t)
	f.cache.Set(t.Context(), "City", []any{"stale"})
	f.clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(t.Context())
	coll := remote.CollectionFunc(func(ctx context.Context) ([]any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	if _, err := f.loader.LoadEntityData(ctx, coll, "City", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPriorityDefaultsFromTable(t *testing.T) {
	tbl := priority.NewTable(map[string]priority.Level{"Banner": priority.Critical})
	f := newFixture(t, WithPriorityTable(tbl))

	if got := f.loader.PriorityOf("Banner"); got != priority.Critical {
		t.Fatalf("Banner = %v", got)
	}
	if got := f.loader.PriorityOf("City"); got != priority.Normal {
		t.Fatalf("unlisted entity = %v, want normal", got)
	}
	o := f.loader.resolve("Banner", []LoadOption{Priority(priority.Low)})
	if o.priority != priority.Low {
		t.Fatalf("explicit priority ignored: %v", o.priority)
	}
	if o.expiry != cache.Medium || !o.fallbackToExpired || o.forceRefresh {
		t.Fatalf("unexpected defaults %+v", o)
	}
}

func TestLoadSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, WithTracer(tracing.New(tracing.Config{TracerProvider: tp})))
	ctx := t.Context()
	coll := &counting{records: []any{1}}

	if _, err := f.loader.LoadEntityData(ctx, coll, "City", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := f.loader.LoadEntityData(ctx, coll, "City", nil); err != nil {
		t.Fatal(err)
	}

	var results []string
	fetches := 0
	for _, s := range rec.Ended() {
		switch s.Name() {
		case tracing.SpanFetch:
			fetches++
		case tracing.SpanLoad:
			for _, kv := range s.Attributes() {
				if kv.Key == tracing.AttrCacheResult {
					results = append(results, kv.Value.AsString())
				}
			}
		}
	}
	if fetches != 1 {
		t.Fatalf("fetch spans = %d, want 1", fetches)
	}
	if len(results) != 2 || results[0] != resultFetched || results[1] != resultHit {
		t.Fatalf("cache results = %v", results)
	}
}

func TestFetchMetrics(t *testing.T) {
	reg := newRegistry(t)
	f := newFixture(t, WithMetrics(metrics.New(reg)))
	coll := &counting{}
	coll.fail.Store(true)

	_, _ = f.loader.LoadEntityData(t.Context(), coll, "Review", nil)

	if got := countMetric(t, reg, "entityload_loader_fetches_total"); got != 1 {
		t.Fatalf("fetches_total = %v, want 1", got)
	}
	n, err := testutil.GatherAndCount(reg, "entityload_loader_fallbacks_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 0 {
		t.Fatalf("no fallback expected, got %d series", n)
	}
}

// loadCounter counts store reads.
type loadCounter struct {
	*cache.MemoryStore
	loads atomic.Int32
}

func (l *loadCounter) Load(ctx context.Context, name string) (cache.Entry, bool) {
	l.loads.Add(1)
	return l.MemoryStore.Load(ctx, name)
}

func TestStaleFallbackReadsStoreOnce(t *testing.T) {
	clk := newClock()
	store := &loadCounter{MemoryStore: cache.NewMemoryStore()}
	c := cache.New(cache.WithStore(store), cache.WithClock(clk.Now))
	s := scheduler.New(scheduler.WithDispatchGap(0))
	t.Cleanup(s.Close)
	l := New(c, s)
	ctx := t.Context()

	c.Set(ctx, "City", []any{"Lisbon"})
	clk.Advance(time.Hour)
	coll := &counting{}
	coll.fail.Store(true)
	store.loads.Store(0)

	recs, err := l.LoadEntityData(ctx, coll, "City", nil)
	if err != nil || len(recs) != 1 || recs[0] != "Lisbon" {
		t.Fatalf("got %v, %v", recs, err)
	}
	// Initial lookup, re-check after admission, one read for the fallback.
	if n := store.loads.Load(); n != 3 {
		t.Fatalf("store loads = %d, want 3", n)
	}
}

func TestErrorHandlerSkippedOnCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(t.Context())
	coll := remote.CollectionFunc(func(ctx context.Context) ([]any, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})

	var called atomic.Bool
	_, err := f.loader.LoadEntityData(ctx, coll, "City", nil, ErrorHandler(func(error) []any {
		called.Store(true)
		return []any{"placeholder"}
	}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called.Load() {
		t.Fatal("error handler must not run for a cancelled load")
	}
}
