package authkit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ramppy/authkit/internal"
	"github.com/ramppy/authkit/internal/validate"
	"github.com/ramppy/authkit/record"
)

// RequestPasswordReset issues a reset token for email when an account
// exists. The result is the same whether or not it does; store failures
// are logged and also produce that result.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) Result {
	if !e.ready() {
		return failure(ErrEngineNotReady)
	}
	email = validate.NormalizeEmail(email)

	if err := e.CheckRateLimit(ctx, ActionPasswordReset, email, e.config.RateLimit.PasswordReset); err != nil {
		return failure(err)
	}
	if err := validate.Email(email); err != nil {
		return failure(fieldError(err))
	}

	e.metricInc(MetricPasswordResetRequest)
	userID := e.issueResetToken(ctx, email)
	e.emitAudit(ctx, EventPasswordResetRequest, true, userID, nil, nil)
	return success(msgResetRequested, nil)
}

func (e *Engine) issueResetToken(ctx context.Context, email string) string {
	unlock := e.accountLock.Lock(email)
	defer unlock()

	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	cred, err := e.records.FindByEmail(sctx, email)
	if err != nil {
		if !errors.Is(err, record.ErrNotFound) {
			e.metricInc(MetricStoreFailure)
			e.logger.Error("password reset lookup failed", slog.Any("error", err))
		}
		return ""
	}

	token, err := internal.NewToken(e.config.PasswordReset.TokenBytes)
	if err != nil {
		e.logger.Error("password reset token failed", slog.Any("error", err))
		return ""
	}
	expires := e.now().Add(e.config.PasswordReset.TokenTTL)
	cred.ResetTokenHash = internal.HashToken(token)
	cred.ResetExpiresAt = &expires
	if err := e.records.Update(sctx, cred); err != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Error("password reset store failed", slog.String("user_id", cred.ID), slog.Any("error", err))
		return ""
	}

	if err := e.notifier.SendPasswordReset(ctx, email, token); err != nil {
		e.logger.Warn("password reset email not sent", slog.String("user_id", cred.ID), slog.Any("error", err))
	}
	return cred.ID
}

// ConfirmPasswordReset sets a new password using a token from
// RequestPasswordReset. The token is single-use and expires after
// PasswordReset.TokenTTL. A successful reset also clears any lockout.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) Result {
	if !e.ready() {
		return failure(ErrEngineNotReady)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return failure(&ValidationError{Field: "token", Reason: "Recovery token is required."})
	}
	digest := internal.HashToken(token)

	if err := e.CheckRateLimit(ctx, ActionPasswordResetConfirm, digest[:16], e.config.RateLimit.PasswordResetConfirm); err != nil {
		return failure(err)
	}
	if err := e.config.PasswordPolicy.Check(newPassword); err != nil {
		return failure(passwordError(err))
	}

	userID, err := e.consumeResetToken(ctx, digest, newPassword)
	if err != nil {
		if errors.Is(err, ErrResetTokenInvalid) {
			e.metricInc(MetricPasswordResetConfirmFailure)
		}
		e.emitAudit(ctx, EventPasswordResetConfirm, false, userID, err, nil)
		return failure(err)
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, EventPasswordResetConfirm, true, userID, nil, nil)
	return success(msgResetConfirmed, nil)
}

func (e *Engine) consumeResetToken(ctx context.Context, digest, newPassword string) (string, error) {
	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	cred, err := e.records.FindByResetTokenHash(sctx, digest)
	if errors.Is(err, record.ErrNotFound) {
		return "", ErrResetTokenInvalid
	}
	if err != nil {
		e.metricInc(MetricStoreFailure)
		return "", storeError(err)
	}

	unlock := e.accountLock.Lock(cred.Email)
	defer unlock()

	// Reload under the lock so a concurrent confirmation cannot reuse the
	// token.
	cred, err = e.records.FindByResetTokenHash(sctx, digest)
	if errors.Is(err, record.ErrNotFound) {
		return "", ErrResetTokenInvalid
	}
	if err != nil {
		e.metricInc(MetricStoreFailure)
		return "", storeError(err)
	}

	now := e.now()
	expired := cred.ResetExpiresAt == nil || !now.Before(*cred.ResetExpiresAt)
	cred.ResetTokenHash = ""
	cred.ResetExpiresAt = nil
	if expired {
		if err := e.records.Update(sctx, cred); err != nil {
			e.logger.Warn("expired reset token not cleared", slog.String("user_id", cred.ID), slog.Any("error", err))
		}
		return cred.ID, ErrResetTokenInvalid
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return cred.ID, err
	}
	cred.PasswordHash = hash
	cred.FailedAttempts = 0
	cred.LockedUntil = nil
	if err := e.records.Update(sctx, cred); err != nil {
		e.metricInc(MetricStoreFailure)
		return cred.ID, storeError(err)
	}
	return cred.ID, nil
}
