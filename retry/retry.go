package retry

import (
	"context"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls the retry behaviour of [Do].
type Config struct {
	// MaxAttempts is the maximum number of times fn is called (including the
	// first attempt). Values ≤ 1 mean no retries.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Subsequent retries use
	// exponential back-off: BaseDelay * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the computed back-off delay. Zero means no cap.
	MaxDelay time.Duration

	// Jitter adds randomness to the delay. A value of 0.2 means ±20 % of
	// the computed delay. Zero disables jitter.
	Jitter float64

	// RetryCodes lists the gRPC status codes that are considered retryable.
	RetryCodes []codes.Code

	// RetryIf classifies errors that carry no gRPC status. It is consulted
	// after RetryCodes; nil means such errors are not retried.
	RetryIf func(error) bool

	// OnRetry, when set, is called before each wait with the failed attempt
	// number (0-indexed), its error and the delay about to be applied.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Retryable reports whether err may be retried under cfg.
func (cfg Config) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return slices.Contains(cfg.RetryCodes, st.Code())
	}
	return cfg.RetryIf != nil && cfg.RetryIf(err)
}

// Do calls fn up to cfg.MaxAttempts times, retrying only errors accepted by
// [Config.Retryable]. Between attempts an exponential back-off delay (with
// optional jitter) is applied. The last error is returned unchanged.
//
// The context is checked before every retry; if ctx is done the function
// returns immediately with the context error.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := range attempts {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if i == attempts-1 || !cfg.Retryable(err) {
			return zero, err
		}

		delay := backoff(cfg, i)
		if cfg.OnRetry != nil {
			cfg.OnRetry(i, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	// Unreachable, but keeps the compiler happy.
	return zero, nil
}
