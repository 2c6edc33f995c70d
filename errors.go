package authkit

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited matches every *RateLimitError.
	ErrRateLimited = errors.New("rate limited")
	// ErrAuthenticationFailed covers both an unknown email and a wrong
	// password.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAccountLocked matches every *LockedError.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified is returned by Login when verification is required.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrDuplicateAccount is returned by Signup for a taken email.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrStoreUnavailable wraps record store failures and timeouts.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrResetTokenInvalid is returned for unknown or expired reset tokens.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
	// ErrVerificationTokenInvalid is returned for unknown verification tokens.
	ErrVerificationTokenInvalid = errors.New("email verification token invalid")
	// ErrEngineNotReady is returned by operations on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not ready")
)

// ValidationError is a malformed or policy-violating input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// RateLimitError carries the wait before the action may be retried.
type RateLimitError struct {
	Action     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited for %s", e.Action, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetrySeconds is RetryAfter in whole seconds, rounded up.
func (e *RateLimitError) RetrySeconds() int {
	return int((e.RetryAfter + time.Second - 1) / time.Second)
}

// LockedError carries the remaining lock time.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %s", e.RetryAfter)
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetryMinutes is RetryAfter in whole minutes, rounded up and at least one.
func (e *LockedError) RetryMinutes() int {
	m := int((e.RetryAfter + time.Minute - 1) / time.Minute)
	if m < 1 {
		m = 1
	}
	return m
}

func storeError(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
