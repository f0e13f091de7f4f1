package port

import (
	"context"
	"time"
)

// RateLimitWindow is the state of one sliding window after a hit was evaluated.
type RateLimitWindow struct {
	Allowed bool
	// Count is the number of recorded attempts inside the window, including this one when allowed.
	Count  int
	Oldest time.Time
}

// RateLimitStore evaluates and records an attempt in a single atomic step.
type RateLimitStore interface {
	Hit(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (RateLimitWindow, error)
}
