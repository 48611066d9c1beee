// Package breaker guards remote collection fetches with per-entity circuit
// breakers, so a collaborator that keeps failing is answered from the stale
// cache without being called on every load.
//
// States:
//   - Closed: fetches flow normally; consecutive failures are counted.
//   - Open: fetches are refused; after OpenTimeout the breaker moves to HalfOpen.
//   - HalfOpen: a limited number of probe fetches are allowed through;
//     enough successes close the breaker, any failure reopens it.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Run when the breaker refuses the call.
var ErrOpen = errors.New("breaker: circuit open")

// State represents the current circuit breaker state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed state
	// before the breaker trips to Open.
	FailureThreshold int

	// OpenTimeout is how long the breaker stays Open before transitioning
	// to HalfOpen.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive successes required in
	// HalfOpen state to close the breaker again.
	HalfOpenMaxSuccess int
}

// DefaultConfig trips after five consecutive failures and probes again after
// thirty seconds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		OpenTimeout:        30 * time.Second,
		HalfOpenMaxSuccess: 1,
	}
}

func (c Config) normalize() Config {
	c.FailureThreshold = max(c.FailureThreshold, 1)
	c.HalfOpenMaxSuccess = max(c.HalfOpenMaxSuccess, 1)
	return c
}

// StateChangeFunc is told about every transition of the named breaker. It is
// called with the breaker locked and must not call back into it.
type StateChangeFunc func(name string, from, to State)

// Breaker is a minimal circuit breaker. All methods are safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	cfg      Config
	name     string
	onChange StateChangeFunc

	state     State
	failures  int // consecutive failures in Closed
	successes int // consecutive successes in HalfOpen
	openedAt  time.Time
	nowFunc   func() time.Time
}

// New creates a Breaker with the given configuration.
func New(cfg Config) *Breaker {
	return newWithClock(cfg, time.Now)
}

func newWithClock(cfg Config, now func() time.Time) *Breaker {
	return &Breaker{
		cfg:     cfg.normalize(),
		state:   Closed,
		nowFunc: now,
	}
}

// State returns the current state. An Open breaker whose timeout has elapsed
// reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkOpenTimeout()
	return b.state
}

// Allow reports whether a call may go through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkOpenTimeout()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return b.successes < b.cfg.HalfOpenMaxSuccess
	default: // Open
		return false
	}
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			b.setState(Closed)
			b.failures = 0
			b.successes = 0
		}
	}
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.toOpen()
		}
	case HalfOpen:
		b.toOpen()
	}
}

// Run calls fn when the breaker allows it and records the result. Context
// cancellation is not counted as a failure of the collaborator.
func Run[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.Allow() {
		return zero, ErrOpen
	}
	v, err := fn(ctx)
	switch {
	case err == nil:
		b.OnSuccess()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
	default:
		b.OnFailure()
	}
	return v, err
}

// checkOpenTimeout transitions from Open to HalfOpen when the timeout has
// elapsed. Must be called with b.mu held.
func (b *Breaker) checkOpenTimeout() {
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		b.setState(HalfOpen)
		b.successes = 0
	}
}

func (b *Breaker) toOpen() {
	b.setState(Open)
	b.openedAt = b.nowFunc()
	b.successes = 0
}

func (b *Breaker) setState(to State) {
	from := b.state
	b.state = to
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}
