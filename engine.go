package authkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ramppy/authkit/internal"
	"github.com/ramppy/authkit/internal/audit"
	"github.com/ramppy/authkit/internal/rate"
	"github.com/ramppy/authkit/password"
	"github.com/ramppy/authkit/record"
	"github.com/ramppy/authkit/session"
)

// Rate-limited action names. They prefix limiter bucket keys and appear in
// RateLimitError.Action.
const (
	ActionSignup               = "signup"
	ActionLogin                = "login"
	ActionPasswordReset        = "password-reset"
	ActionPasswordResetConfirm = "password-reset-confirm"
	ActionEmailVerification    = "verify-email"
)

// Engine runs the account and session operations. It is safe for concurrent
// use once built and must not be copied.
type Engine struct {
	config   Config
	records  record.Store
	sessions *session.Store
	limiter  rate.Limiter
	hasher   *password.PBKDF2
	notifier Notifier
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	// accountLock serializes credential read-modify-write per email;
	// clientLock does the same for a browser's session slot.
	accountLock *internal.KeyLock
	clientLock  *internal.KeyLock

	// dummy is verified against for unknown emails.
	dummy     string
	dummyOnce sync.Once

	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// Close stops background work and flushes pending audit events. The engine
// must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.stopSweep != nil {
		e.stopSweep()
		<-e.sweepDone
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters and the
// login latency histogram. With metrics disabled every value is zero.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// HashPassword derives a storable PBKDF2 hash with the configured cost.
func (e *Engine) HashPassword(pw string) (string, error) {
	if e == nil || e.hasher == nil {
		return "", ErrEngineNotReady
	}
	return e.hasher.Hash(pw)
}

// VerifyPassword checks pw against an encoded hash. A malformed hash is a
// mismatch, never an error the caller has to branch on.
func (e *Engine) VerifyPassword(pw, encoded string) bool {
	if e == nil || e.hasher == nil {
		return false
	}
	ok, err := e.hasher.Verify(pw, encoded)
	if err != nil {
		e.logger.Warn("stored password hash unreadable", slog.Any("error", err))
		return false
	}
	return ok
}

// CheckRateLimit records one attempt of action by identifier against rule.
// It returns nil when the attempt is allowed and a *RateLimitError when it
// is not. Rejected attempts are not recorded.
func (e *Engine) CheckRateLimit(ctx context.Context, action, identifier string, rule RateRule) error {
	if e == nil || e.limiter == nil {
		return ErrEngineNotReady
	}
	err := e.limiter.Allow(ctx, action, identifier, rate.Rule{MaxAttempts: rule.MaxAttempts, Window: rule.Window})
	if err == nil {
		return nil
	}

	var le *rate.LimitError
	if errors.As(err, &le) {
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(ctx, EventRateLimited, false, "", err, map[string]string{
			"action": action,
		})
		return &RateLimitError{Action: le.Action, RetryAfter: le.RetryAfter}
	}
	if errors.Is(err, rate.ErrInvalidRule) {
		return fmt.Errorf("rate limit %s: %w", action, err)
	}

	// A limiter that cannot answer rejects the attempt.
	e.metricInc(MetricStoreFailure)
	e.logger.Error("rate limiter unavailable", slog.String("action", action), slog.Any("error", err))
	return storeError(err)
}

func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Store.Timeout)
}

// failureDelay waits a random time within the configured login failure
// window.
func (e *Engine) failureDelay(ctx context.Context) {
	d, err := internal.RandomDuration(e.config.Login.FailureDelayMin, e.config.Login.FailureDelayMax)
	if err != nil {
		d = e.config.Login.FailureDelayMax
	}
	_ = e.sleep(ctx, d)
}

func (e *Engine) ready() bool {
	return e != nil && e.records != nil && e.sessions != nil && e.limiter != nil && e.hasher != nil
}
