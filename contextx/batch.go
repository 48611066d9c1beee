package contextx

import (
	"context"

	"github.com/google/uuid"
)

// WithBatchID returns a derived context that carries the given batch ID.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

// BatchIDFromContext extracts the batch ID stored in ctx.
// It returns an empty string when no batch ID is present.
func BatchIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey).(string)
	return id
}

// EnsureBatchID returns ctx unchanged when it already carries a batch ID,
// otherwise a derived context with a fresh random one.
func EnsureBatchID(ctx context.Context) (context.Context, string) {
	if id := BatchIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return WithBatchID(ctx, id), id
}
