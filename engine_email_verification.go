package authkit

import (
	"context"
	"errors"
	"strings"

	"github.com/ramppy/authkit/internal"
	"github.com/ramppy/authkit/record"
)

// VerifyEmail marks the account holding token as verified and consumes the
// token.
func (e *Engine) VerifyEmail(ctx context.Context, token string) Result {
	if !e.ready() {
		return failure(ErrEngineNotReady)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return failure(&ValidationError{Field: "token", Reason: "Verification token is required."})
	}

	if err := e.CheckRateLimit(ctx, ActionEmailVerification, internal.HashToken(token)[:16], e.config.RateLimit.EmailVerification); err != nil {
		return failure(err)
	}

	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	cred, err := e.records.FindByVerificationToken(sctx, token)
	if errors.Is(err, record.ErrNotFound) {
		e.metricInc(MetricEmailVerificationFailure)
		return failure(ErrVerificationTokenInvalid)
	}
	if err != nil {
		e.metricInc(MetricStoreFailure)
		return failure(storeError(err))
	}

	unlock := e.accountLock.Lock(cred.Email)
	defer unlock()

	cred, err = e.records.FindByVerificationToken(sctx, token)
	if errors.Is(err, record.ErrNotFound) {
		e.metricInc(MetricEmailVerificationFailure)
		return failure(ErrVerificationTokenInvalid)
	}
	if err != nil {
		e.metricInc(MetricStoreFailure)
		return failure(storeError(err))
	}

	cred.EmailVerified = true
	cred.VerificationToken = ""
	if err := e.records.Update(sctx, cred); err != nil {
		e.metricInc(MetricStoreFailure)
		return failure(storeError(err))
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, EventEmailVerified, true, cred.ID, nil, nil)
	return success(msgEmailVerified, nil)
}
