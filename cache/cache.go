// Package cache holds per-entity snapshots and answers freshness questions
// about them. Freshness is judged per query against a Tier, never stored on
// the entry, so the same snapshot can be fresh for one caller and stale for
// another.
//
// Snapshots live in a pluggable Store: an unbounded in-process map by
// default, a ristretto-backed L1, a Redis-backed L2, or both combined.
package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Tier is a named freshness class.
type Tier int

const (
	Short Tier = iota
	Medium
	Long
)

// String returns the lower-case tier name.
func (t Tier) String() string {
	switch t {
	case Short:
		return "short"
	case Medium:
		return "medium"
	case Long:
		return "long"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// TTLs maps every Tier to its time-to-live.
type TTLs map[Tier]time.Duration

// DefaultTTLs returns 30s, 5m and 1h for Short, Medium and Long.
func DefaultTTLs() TTLs {
	return TTLs{
		Short:  30 * time.Second,
		Medium: 5 * time.Minute,
		Long:   time.Hour,
	}
}

// For returns the TTL of tier. Unknown tiers have a zero TTL, so nothing is
// ever fresh under them.
func (t TTLs) For(tier Tier) time.Duration {
	return t[tier]
}

// Entry is the snapshot stored for one entity name. A write replaces the
// whole entry; payload and timestamp always travel together.
type Entry struct {
	Name      string    `json:"name"`
	Payload   []any     `json:"payload"`
	WrittenAt time.Time `json:"written_at"`
}

// Age returns how old e is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt)
}

// Store persists snapshots. Implementations must be safe for concurrent use
// and must store entries as whole values.
type Store interface {
	// Load returns the entry for name and whether one was ever saved.
	Load(ctx context.Context, name string) (Entry, bool)

	// Save replaces the entry for e.Name.
	Save(ctx context.Context, e Entry)
}

// Lookup results reported to an Observer.
const (
	ResultFresh = "fresh"
	ResultStale = "stale"
	ResultMiss  = "miss"
)

// Observer receives cache events. The metrics package provides one backed by
// Prometheus.
type Observer interface {
	ObserveLookup(entity string, tier Tier, result string)
	ObserveWrite(entity string, records int)
}

type nopObserver struct{}

func (nopObserver) ObserveLookup(string, Tier, string) {}
func (nopObserver) ObserveWrite(string, int)           {}

// Cache is the tiered snapshot cache. All methods are safe for concurrent
// use; writes are serialized so the last write wins.
type Cache struct {
	store   Store
	ttls    TTLs
	obs     Observer
	nowFunc func() time.Time

	mu sync.Mutex // serializes Set
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore replaces the default in-process MemoryStore.
func WithStore(s Store) Option {
	return func(c *Cache) {
		if s != nil {
			c.store = s
		}
	}
}

// WithTTLs replaces the tier TTL table. Tiers missing from ttls keep their
// default.
func WithTTLs(ttls TTLs) Option {
	return func(c *Cache) {
		for tier, d := range ttls {
			c.ttls[tier] = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.nowFunc = now
		}
	}
}

// WithObserver installs an Observer for lookups and writes.
func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.obs = o
		}
	}
}

// New creates a Cache. Without options it keeps snapshots in memory and uses
// DefaultTTLs.
func New(opts ...Option) *Cache {
	c := &Cache{
		store:   NewMemoryStore(),
		ttls:    DefaultTTLs(),
		obs:     nopObserver{},
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// TTL returns the time-to-live configured for tier.
func (c *Cache) TTL(tier Tier) time.Duration {
	return c.ttls.For(tier)
}

// Has reports whether an entry exists for name and is younger than the TTL
// of tier.
func (c *Cache) Has(ctx context.Context, name string, tier Tier) bool {
	_, ok := c.Lookup(ctx, name, tier)
	return ok
}

// Get returns the payload for name when it is fresh under tier. When it is
// not, Get fails closed and returns an empty slice.
func (c *Cache) Get(ctx context.Context, name string, tier Tier) []any {
	v, ok := c.Lookup(ctx, name, tier)
	if !ok {
		return []any{}
	}
	return v
}

// Lookup combines Has and Get in a single read of the store, so the
// freshness decision and the returned payload come from the same entry.
func (c *Cache) Lookup(ctx context.Context, name string, tier Tier) ([]any, bool) {
	e, ok := c.store.Load(ctx, name)
	if !ok {
		c.obs.ObserveLookup(name, tier, ResultMiss)
		return nil, false
	}
	if e.Age(c.nowFunc()) >= c.ttls.For(tier) {
		c.obs.ObserveLookup(name, tier, ResultStale)
		return nil, false
	}
	c.obs.ObserveLookup(name, tier, ResultFresh)
	return slices.Clone(e.Payload), true
}

// Set overwrites the entry for name with payload, stamped with the current
// time.
func (c *Cache) Set(ctx context.Context, name string, payload []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Save(ctx, Entry{
		Name:      name,
		Payload:   slices.Clone(payload),
		WrittenAt: c.nowFunc(),
	})
	c.obs.ObserveWrite(name, len(payload))
}

// Entry returns the whole entry for name regardless of its age, read from
// the store once. The payload is a copy.
func (c *Cache) Entry(ctx context.Context, name string) (Entry, bool) {
	e, ok := c.store.Load(ctx, name)
	if !ok {
		return Entry{}, false
	}
	e.Payload = slices.Clone(e.Payload)
	return e, true
}

// GetExpired returns the payload for name regardless of its age. The boolean
// is false when nothing was ever written for name.
func (c *Cache) GetExpired(ctx context.Context, name string) ([]any, bool) {
	e, ok := c.Entry(ctx, name)
	return e.Payload, ok
}

// WrittenAt returns when name was last written.
func (c *Cache) WrittenAt(ctx context.Context, name string) (time.Time, bool) {
	e, ok := c.store.Load(ctx, name)
	return e.WrittenAt, ok
}
