// Package contextx carries load-scoped identifiers through context.Context
// so logs and spans of one batch can be correlated.
package contextx

// contextKey is an unexported type used as context key to avoid collisions
// with keys defined in other packages.
type contextKey int

const (
	batchIDKey contextKey = iota
)
