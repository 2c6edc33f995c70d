package rate

import (
	"context"
	"time"
)

// Rule bounds how many attempts are allowed within Window.
type Rule struct {
	MaxAttempts int
	Window      time.Duration
}

func (r Rule) valid() bool {
	return r.MaxAttempts > 0 && r.Window > 0
}

// Limiter admits or rejects one attempt for the bucket action:identifier.
// Allow returns nil when the attempt was recorded and a *LimitError when the
// bucket is full.
type Limiter interface {
	Allow(ctx context.Context, action, identifier string, rule Rule) error
}

func bucketKey(action, identifier string) string {
	return action + ":" + identifier
}
