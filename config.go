package entityload

import (
	"log/slog"
	"time"

	"github.com/IntegraSac-Oficial/entityload/breaker"
	"github.com/IntegraSac-Oficial/entityload/cache"
	"github.com/IntegraSac-Oficial/entityload/priority"
	"github.com/IntegraSac-Oficial/entityload/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// config holds the internal configuration assembled via functional options.
type config struct {
	// Storage.
	l1MaxCost int64
	redis     *redis.Options
	redisTTL  time.Duration
	ttls      cache.TTLs

	// Scheduling.
	maxConcurrent int
	dispatchGap   time.Duration

	// Priorities. file takes precedence over table when both are set.
	table     *priority.Table
	tableFile string

	// Remote fetch policy.
	retry     *retry.Config
	breaker   *breaker.Config
	rateLimit float64
	rateBurst int

	// Observability.
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	logger         *slog.Logger
}

func defaultConfig() config {
	return config{
		maxConcurrent: 3,
		dispatchGap:   100 * time.Millisecond,
	}
}
