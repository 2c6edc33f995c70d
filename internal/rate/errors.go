package rate

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited matches every *LimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps failures talking to the Redis backend.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidRule is returned for rules with a non-positive maximum or window.
	ErrInvalidRule = errors.New("invalid rate limit rule")
)

// LimitError is returned when a bucket is full. RetryAfter is rounded up to
// whole seconds and is never below one second.
type LimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s rate limited, retry in %d seconds", e.Action, int(e.RetryAfter/time.Second))
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

func newLimitError(action string, wait time.Duration) *LimitError {
	secs := (wait + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return &LimitError{Action: action, RetryAfter: secs * time.Second}
}
