package loader

import (
	"errors"

	"github.com/IntegraSac-Oficial/entityload/breaker"
)

var (
	// ErrNoCacheAvailable reports that stale fallback was requested but no
	// entry was ever cached for the entity. It is logged; the caller still
	// receives the original fetch error.
	ErrNoCacheAvailable = errors.New("loader: no cached entry to fall back to")

	// ErrCircuitOpen is returned by a fetch refused by the entity's circuit
	// breaker.
	ErrCircuitOpen = breaker.ErrOpen

	// ErrNoCollection is returned when a load is attempted without a remote
	// collection.
	ErrNoCollection = errors.New("loader: no remote collection")

	// errUnexpectedResult guards the scheduler boundary, where results are
	// untyped.
	errUnexpectedResult = errors.New("loader: unexpected fetch result type")
)
