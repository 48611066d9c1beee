package entityload

import (
	"context"
	"errors"
	"time"

	"github.com/IntegraSac-Oficial/entityload/breaker"
	"github.com/IntegraSac-Oficial/entityload/remote"
	"github.com/IntegraSac-Oficial/entityload/retry"
	"google.golang.org/grpc/codes"
)

// DefaultRetry retries transient transport failures three times with
// jittered exponential back-off. An open breaker, an unknown entity and a
// cancelled context are never retried.
func DefaultRetry() retry.Config {
	return retry.Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
		RetryCodes:  []codes.Code{codes.Unavailable, codes.ResourceExhausted, codes.Aborted},
		RetryIf: func(err error) bool {
			switch {
			case errors.Is(err, breaker.ErrOpen),
				errors.Is(err, remote.ErrUnknownEntity),
				errors.Is(err, context.Canceled),
				errors.Is(err, context.DeadlineExceeded):
				return false
			}
			return true
		},
	}
}

// DefaultOptions returns the recommended set of options for production use:
// retries with back-off and a per-entity circuit breaker on top of the
// default scheduling limits.
func DefaultOptions() []Option {
	return []Option{
		WithRetry(DefaultRetry()),
		WithBreaker(breaker.DefaultConfig()),
	}
}
