package scheduler

import (
	"context"
	"sync"
)

// Outcome is the one-shot result slot of an enqueued request. It settles
// exactly once, with either a value or an error.
type Outcome struct {
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newOutcome() *Outcome {
	return &Outcome{done: make(chan struct{})}
}

// settle records the result. Only the first call has any effect.
func (o *Outcome) settle(val any, err error) {
	o.once.Do(func() {
		o.val, o.err = val, err
		close(o.done)
	})
}

// Done is closed once the outcome has settled.
func (o *Outcome) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the outcome settles or ctx is done. Giving up on ctx
// does not cancel the request; it only stops waiting for it.
func (o *Outcome) Wait(ctx context.Context) (any, error) {
	select {
	case <-o.done:
		return o.val, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
