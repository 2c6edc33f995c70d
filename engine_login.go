package authkit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ramppy/authkit/internal/validate"
	"github.com/ramppy/authkit/record"
)

// Login authenticates email and password and opens a session for the client
// in ctx. Unknown emails and wrong passwords produce the same result after
// the same randomized delay. Login.LockoutThreshold consecutive failures
// lock the account for Login.LockoutDuration; while locked, even the correct
// password is refused.
func (e *Engine) Login(ctx context.Context, email, pw string) Result {
	if !e.ready() {
		return failure(ErrEngineNotReady)
	}
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricLoginLatency, time.Since(start))
		}
	}()

	email = validate.NormalizeEmail(email)
	if err := e.CheckRateLimit(ctx, ActionLogin, email, e.config.RateLimit.Login); err != nil {
		return failure(err)
	}
	if email == "" || pw == "" {
		return failure(&ValidationError{Field: "credentials", Reason: "Email and password are required."})
	}

	profile, err := e.authenticate(ctx, email, pw)
	if err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			e.failureDelay(ctx)
		}
		return failure(err)
	}

	if _, err := e.CreateSession(ctx, profile.userID, profile.Profile); err != nil {
		e.logger.Error("session create failed", slog.String("user_id", profile.userID), slog.Any("error", err))
		return failure(err)
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLoginSuccess, true, profile.userID, nil, nil)
	return success("", &profile.Profile)
}

type authenticated struct {
	Profile
	userID string
}

// authenticate runs the credential check and the lockout bookkeeping under
// the account lock. An unknown email releases the lock before paying for the
// decoy verification.
func (e *Engine) authenticate(ctx context.Context, email, pw string) (*authenticated, error) {
	unlock := e.accountLock.Lock(email)
	auth, err := e.checkCredentials(ctx, email, pw)
	unlock()

	if errors.Is(err, record.ErrNotFound) {
		// Burn the same work a real verification costs.
		e.VerifyPassword(pw, e.dummyHash())
		e.metricInc(MetricLoginUnknownUser)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, "", ErrAuthenticationFailed, map[string]string{
			"reason": "unknown_user",
		})
		return nil, ErrAuthenticationFailed
	}
	return auth, err
}

// checkCredentials must be called with the account lock held. It returns
// record.ErrNotFound untouched for an unknown email.
func (e *Engine) checkCredentials(ctx context.Context, email, pw string) (*authenticated, error) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	cred, err := e.records.FindByEmail(sctx, email)
	switch {
	case errors.Is(err, record.ErrNotFound):
		return nil, err
	case err != nil:
		e.metricInc(MetricStoreFailure)
		e.logger.Error("login store failure", slog.Any("error", err))
		return nil, storeError(err)
	}

	now := e.now()
	if cred.Locked(now) {
		e.metricInc(MetricLoginWhileLocked)
		e.emitAudit(ctx, EventLoginFailure, false, cred.ID, ErrAccountLocked, map[string]string{
			"reason": "locked",
		})
		return nil, &LockedError{RetryAfter: cred.LockedUntil.Sub(now)}
	}

	if !e.VerifyPassword(pw, cred.PasswordHash) {
		return nil, e.recordFailure(ctx, sctx, cred, now)
	}

	if e.config.Login.RequireVerifiedEmail && !cred.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, false, cred.ID, ErrEmailNotVerified, map[string]string{
			"reason": "unverified",
		})
		return nil, ErrEmailNotVerified
	}

	cred.FailedAttempts = 0
	cred.LockedUntil = nil
	cred.LastLoginAt = &now
	if e.config.Password.UpgradeOnLogin {
		e.rehash(cred, pw)
	}
	if err := e.records.Update(sctx, cred); err != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Error("login store failure", slog.String("user_id", cred.ID), slog.Any("error", err))
		return nil, storeError(err)
	}

	return &authenticated{
		Profile: Profile{Name: cred.Name, Email: cred.Email, Company: cred.Company},
		userID:  cred.ID,
	}, nil
}

// recordFailure counts a wrong password and locks the account when the
// threshold is reached. The counter restarts once the lock is set.
func (e *Engine) recordFailure(ctx, sctx context.Context, cred *record.Credential, now time.Time) error {
	e.metricInc(MetricLoginFailure)
	cred.FailedAttempts++

	locked := cred.FailedAttempts >= e.config.Login.LockoutThreshold
	if locked {
		until := now.Add(e.config.Login.LockoutDuration)
		cred.LockedUntil = &until
		cred.FailedAttempts = 0
	}
	if err := e.records.Update(sctx, cred); err != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Error("failed attempt not recorded", slog.String("user_id", cred.ID), slog.Any("error", err))
		return storeError(err)
	}

	e.emitAudit(ctx, EventLoginFailure, false, cred.ID, ErrAuthenticationFailed, map[string]string{
		"reason": "bad_password",
	})
	if locked {
		e.metricInc(MetricAccountLocked)
		e.emitIncident(ctx, IncidentAccountLocked, cred.ID, map[string]string{
			"lockout_minutes": strconv.Itoa(int(e.config.Login.LockoutDuration / time.Minute)),
		})
	}
	return ErrAuthenticationFailed
}

// rehash replaces a hash produced with weaker parameters. Failure leaves the
// old hash in place.
func (e *Engine) rehash(cred *record.Credential, pw string) {
	upgrade, err := e.hasher.NeedsUpgrade(cred.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := e.hasher.Hash(pw)
	if err != nil {
		e.logger.Warn("password rehash failed", slog.String("user_id", cred.ID), slog.Any("error", err))
		return
	}
	cred.PasswordHash = hash
	e.metricInc(MetricPasswordRehash)
}

func (e *Engine) dummyHash() string {
	e.dummyOnce.Do(func() {
		e.dummy, _ = e.hasher.Hash("authkit-unknown-user")
	})
	return e.dummy
}
