package authkit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ramppy/authkit/internal"
	"github.com/ramppy/authkit/internal/validate"
	"github.com/ramppy/authkit/password"
	"github.com/ramppy/authkit/record"
)

// Signup registers a new account. Checks run in order: rate limit,
// injection screen, name, email, company, password policy. The stored name
// and company are HTML-escaped; the email is normalized. On success a
// verification token is handed to the Notifier.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) Result {
	if !e.ready() {
		return failure(ErrEngineNotReady)
	}

	email := validate.NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	company := strings.TrimSpace(req.Company)

	if err := e.CheckRateLimit(ctx, ActionSignup, email, e.config.RateLimit.Signup); err != nil {
		return failure(err)
	}

	if validate.Dangerous(req.Name, req.Email, req.Company) {
		e.metricInc(MetricInjectionAttempt)
		e.metricInc(MetricSignupRejected)
		e.emitIncident(ctx, IncidentScriptInjection, "", map[string]string{
			"action": ActionSignup,
			"email":  validate.EscapeHTML(email),
		})
		return failure(&ValidationError{Field: "input", Reason: "Input contains characters that are not allowed."})
	}

	if err := checkFields(name, email, company); err != nil {
		e.metricInc(MetricSignupRejected)
		return failure(err)
	}
	if err := e.config.PasswordPolicy.Check(req.Password); err != nil {
		e.metricInc(MetricSignupRejected)
		return failure(passwordError(err))
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return failure(err)
	}
	token, err := internal.NewToken(e.config.EmailVerification.TokenBytes)
	if err != nil {
		return failure(err)
	}

	cred := &record.Credential{
		ID:                uuid.NewString(),
		Name:              validate.EscapeHTML(name),
		Email:             email,
		PasswordHash:      hash,
		Company:           validate.EscapeHTML(company),
		VerificationToken: token,
		CreatedAt:         e.now(),
	}

	sctx, cancel := e.storeContext(ctx)
	err = e.records.Create(sctx, cred)
	cancel()
	switch {
	case errors.Is(err, record.ErrDuplicate):
		e.metricInc(MetricSignupDuplicate)
		e.emitAudit(ctx, EventSignup, false, "", ErrDuplicateAccount, nil)
		return failure(ErrDuplicateAccount)
	case err != nil:
		e.metricInc(MetricStoreFailure)
		e.logger.Error("signup store failure", slog.Any("error", err))
		return failure(storeError(err))
	}

	if err := e.notifier.SendVerification(ctx, email, token); err != nil {
		e.logger.Warn("verification email not sent", slog.String("user_id", cred.ID), slog.Any("error", err))
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, EventSignup, true, cred.ID, nil, nil)
	return success(msgSignupSuccess, &Profile{Name: cred.Name, Email: cred.Email, Company: cred.Company})
}

func checkFields(name, email, company string) error {
	for _, err := range []error{validate.Name(name), validate.Email(email), validate.Company(company)} {
		if err != nil {
			return fieldError(err)
		}
	}
	return nil
}

func fieldError(err error) error {
	var ve *validate.Error
	if errors.As(err, &ve) {
		return &ValidationError{Field: ve.Field, Reason: ve.Reason}
	}
	return &ValidationError{Field: "input", Reason: err.Error()}
}

func passwordError(err error) error {
	var pe *password.PolicyError
	if errors.As(err, &pe) {
		return &ValidationError{Field: "password", Reason: pe.Reason}
	}
	return &ValidationError{Field: "password", Reason: err.Error()}
}
