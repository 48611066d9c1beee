package cache

import (
	"context"
	"sync"
)

// Tiered combines a fast store (normally L1) with a shared one (normally
// L2). Loads check the fast store first and promote shared hits into it.
// Saves populate both, shared first.
//
// Promotion is serialized with saves: a far entry read before a concurrent
// Save completed is never copied over the newer one.
type Tiered struct {
	near Store
	far  Store

	mu    sync.Mutex
	saves uint64 // completed saves, guarded by mu
}

// NewTiered creates a two-level store.
func NewTiered(near, far Store) *Tiered {
	return &Tiered{near: near, far: far}
}

// Load checks the near store, then the far one. A far hit is promoted so
// later loads stay in-process.
func (t *Tiered) Load(ctx context.Context, name string) (Entry, bool) {
	if e, ok := t.near.Load(ctx, name); ok {
		return e, true
	}

	t.mu.Lock()
	seen := t.saves
	t.mu.Unlock()

	e, ok := t.far.Load(ctx, name)
	if !ok {
		return Entry{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.saves != seen {
		// A save landed while the far read was in flight; e may be stale.
		if n, ok := t.near.Load(ctx, name); ok {
			return n, true
		}
		if e, ok = t.far.Load(ctx, name); !ok {
			return Entry{}, false
		}
	}
	if n, ok := t.near.Load(ctx, name); ok && !n.WrittenAt.Before(e.WrittenAt) {
		return n, true
	}
	t.near.Save(ctx, e)
	return e, true
}

// Save writes e to the far store, then the near one.
func (t *Tiered) Save(ctx context.Context, e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.far.Save(ctx, e)
	t.near.Save(ctx, e)
	t.saves++
}
