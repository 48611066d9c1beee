// Package retry provides a generic retry helper with exponential backoff and
// jitter. The load orchestrator wraps remote collection fetches with it; the
// request scheduler itself never retries.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff returns the delay before retry number attempt (0-indexed): the
// base delay doubled per attempt, capped at cfg.MaxDelay, then spread by
// ±cfg.Jitter.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if limit := float64(cfg.MaxDelay); limit > 0 && delay > limit {
		delay = limit
	}
	if cfg.Jitter > 0 {
		delay += delay * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(delay, 0))
}
