package domain

import (
	"context"
	"time"
)

// RateLimiter provides request rate limiting for the webhook ingress.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the given
	// limit per window, counting the request when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// PriceSource resolves the current price for a symbol. The trailing monitor
// polls it every cycle; implementations may serve from a push-fed cache and
// fall back to a REST ticker call.
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}
