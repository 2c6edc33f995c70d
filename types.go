package authkit

import (
	"context"

	"github.com/ramppy/authkit/session"
)

// Profile is the non-sensitive view of an account: name, email, company.
type Profile = session.Profile

// Environment is the set of browser attributes a session is bound to.
type Environment = session.Environment

// SignupRequest carries the signup form fields. Company is optional.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Company  string `json:"company"`
}

// Notifier delivers out-of-band messages. Delivery failures are logged and
// never change the result of the operation that triggered them.
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// NoOpNotifier discards every message.
type NoOpNotifier struct{}

func (NoOpNotifier) SendVerification(context.Context, string, string) error  { return nil }
func (NoOpNotifier) SendPasswordReset(context.Context, string, string) error { return nil }
