// Package ratelimit provides fixed-window request limiters keyed by caller.
package ratelimit

import "context"

// Limiter reports whether one more request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
