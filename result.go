package authkit

import (
	"errors"
	"fmt"
)

const (
	msgSignupSuccess       = "Account created! Check your email to activate your account."
	msgResetRequested      = "If the email exists in our records, you will receive recovery instructions."
	msgResetConfirmed      = "Password updated. You can now sign in."
	msgEmailVerified       = "Email verified. You can now sign in."
	msgAuthFailed          = "Email or password incorrect."
	msgDuplicate           = "Could not create account. Please try again."
	msgEmailNotVerified    = "Please verify your email before signing in."
	msgResetInvalid        = "This recovery link is invalid or has expired."
	msgVerificationInvalid = "This verification link is invalid or has expired."
	msgGeneric             = "Something went wrong. Please try again."
)

// Result is the uniform outcome of every public engine operation. Callers
// inspect Success and show Message or Error; Err keeps the typed cause for
// errors.Is and errors.As.
type Result struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	User    *Profile `json:"user,omitempty"`
	Error   string   `json:"error,omitempty"`
	Err     error    `json:"-"`
}

func success(message string, user *Profile) Result {
	return Result{Success: true, Message: message, User: user}
}

func failure(err error) Result {
	return Result{Error: publicMessage(err), Err: err}
}

// publicMessage maps err to text that is safe to show. Only validation,
// rate limit and lockout causes are specific.
func publicMessage(err error) string {
	var (
		ve *ValidationError
		re *RateLimitError
		le *LockedError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Reason
	case errors.As(err, &re):
		return fmt.Sprintf("Too many attempts. Try again in %d seconds.", re.RetrySeconds())
	case errors.As(err, &le):
		return fmt.Sprintf("Account temporarily locked. Try again in %d minutes.", le.RetryMinutes())
	case errors.Is(err, ErrAuthenticationFailed):
		return msgAuthFailed
	case errors.Is(err, ErrDuplicateAccount):
		return msgDuplicate
	case errors.Is(err, ErrEmailNotVerified):
		return msgEmailNotVerified
	case errors.Is(err, ErrResetTokenInvalid):
		return msgResetInvalid
	case errors.Is(err, ErrVerificationTokenInvalid):
		return msgVerificationInvalid
	default:
		return msgGeneric
	}
}
