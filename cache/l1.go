package cache

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 is an in-process Store backed by ristretto. It is bounded by maxCost
// (each entry costs 1), so under pressure it may evict snapshots that
// GetExpired would otherwise have served. Pair it with an L2 in Tiered when
// stale fallback must survive eviction.
type L1 struct {
	rc *ristretto.Cache[string, Entry]
}

// NewL1 creates a new L1 store holding up to maxCost snapshots.
func NewL1(maxCost int64) (*L1, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, Entry]{
		NumCounters: maxCost * 10,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rc: rc}, nil
}

// Load returns the snapshot for name.
func (l *L1) Load(_ context.Context, name string) (Entry, bool) {
	return l.rc.Get(name)
}

// Save stores e with no TTL; expiry is judged by the Cache, not the store.
func (l *L1) Save(_ context.Context, e Entry) {
	l.rc.Set(e.Name, e, 1)
	l.rc.Wait()
}

// Close stops ristretto's background goroutines.
func (l *L1) Close() {
	l.rc.Close()
}
