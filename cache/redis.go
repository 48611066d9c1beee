package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces snapshot keys in Redis.
const DefaultKeyPrefix = "entityload:snapshot:"

// L2 is a Redis-backed Store. Snapshots are JSON encoded, so records read
// back from Redis are generic JSON values (maps, slices, float64, ...).
//
// All operations fail soft: if Redis is unavailable Load reports a miss and
// Save silently drops the write.
type L2 struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewL2 creates a Redis-backed L2 store.
func NewL2(addr, password string, db int) *L2 {
	rdb := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		DB:              db,
		Protocol:        2,
		DisableIdentity: true,
	})
	return NewL2WithClient(rdb, DefaultKeyPrefix, 0)
}

// NewL2WithClient wraps an existing client. retention bounds how long Redis
// keeps a snapshot; zero keeps it until overwritten.
func NewL2WithClient(rdb redis.UniversalClient, prefix string, retention time.Duration) *L2 {
	return &L2{rdb: rdb, prefix: prefix, retention: retention}
}

func (l *L2) key(name string) string {
	return l.prefix + name
}

// Load retrieves the snapshot for name. Returns false on a miss, when Redis
// is unreachable, or when the stored value cannot be decoded.
func (l *L2) Load(ctx context.Context, name string) (Entry, bool) {
	raw, err := l.rdb.Get(ctx, l.key(name)).Bytes()
	if err != nil {
		// redis.Nil and connection errors are both a miss.
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false
	}
	e.Name = name
	return e, true
}

// Save writes e. Errors are discarded (fail soft).
func (l *L2) Save(ctx context.Context, e Entry) {
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	_ = l.rdb.Set(ctx, l.key(e.Name), raw, l.retention).Err()
}

// Ping checks the Redis connection.
func (l *L2) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (l *L2) Close() error {
	return l.rdb.Close()
}
