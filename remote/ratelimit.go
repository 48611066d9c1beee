package remote

import (
	"context"

	"github.com/IntegraSac-Oficial/entityload/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errRateLimited is allocated once to avoid per-request allocations on the hot path.
var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

// RateLimitUnary returns a unary server interceptor that rejects List calls
// with codes.ResourceExhausted once the applicable limiter is exhausted. A
// limiter in perEntity applies to the entity named in the request; every
// other call uses global. A nil limiter admits everything.
func RateLimitUnary(global *ratelimit.Limiter, perEntity map[string]*ratelimit.Limiter) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		l := global
		if r, ok := req.(*ListRequest); ok {
			if el, ok := perEntity[r.Entity]; ok {
				l = el
			}
		}
		if !l.Allow() {
			return nil, errRateLimited
		}
		return handler(ctx, req)
	}
}
