// Package remote defines the remote collection collaborator that the load
// orchestrator fetches entities from, plus a gRPC transport for it.
//
// The core never inspects record shape: a collection returns an ordered
// slice of opaque records.
package remote

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrUnknownEntity is returned by a Registry for entity names it does not
// serve.
var ErrUnknownEntity = errors.New("remote: unknown entity")

// Collection lists every record of one entity type.
type Collection interface {
	List(ctx context.Context) ([]any, error)
}

// CollectionFunc adapts a function to Collection.
type CollectionFunc func(ctx context.Context) ([]any, error)

// List calls f.
func (f CollectionFunc) List(ctx context.Context) ([]any, error) {
	return f(ctx)
}

// Static is a Collection that always returns the same records.
type Static []any

// List returns a copy of s.
func (s Static) List(context.Context) ([]any, error) {
	return slices.Clone([]any(s)), nil
}

// Provider serves collections by entity name. It is the server-side
// counterpart of Collection.
type Provider interface {
	List(ctx context.Context, entity string) ([]any, error)
}

// Registry is a Provider backed by a set of named Collections. It is safe
// for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]Collection
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{collections: make(map[string]Collection)}
}

// Add registers c under entity, replacing any previous collection.
func (r *Registry) Add(entity string, c Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[entity] = c
}

// Collection returns the collection registered for entity.
func (r *Registry) Collection(entity string) (Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[entity]
	return c, ok
}

// List implements Provider.
func (r *Registry) List(ctx context.Context, entity string) ([]any, error) {
	c, ok := r.Collection(entity)
	if !ok {
		return nil, ErrUnknownEntity
	}
	return c.List(ctx)
}
