package record

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by Create when the email is already taken.
	ErrDuplicate = errors.New("record already exists")
)

// Credential is a user's stored account. Email is normalized (trimmed and
// lower-cased) and unique.
type Credential struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	Company           string
	LockedUntil       *time.Time
	FailedAttempts    int
	LastLoginAt       *time.Time
	EmailVerified     bool
	VerificationToken string
	ResetTokenHash    string
	ResetExpiresAt    *time.Time
	CreatedAt         time.Time
}

// Locked reports whether the account lock is still in force at now.
func (c *Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}

// Incident is one entry in the security log.
type Incident struct {
	Type      string
	Details   map[string]string
	UserAgent string
	IP        string
	Timestamp time.Time
}

// Store is the remote record service.
type Store interface {
	// Create inserts c unless a record with the same email exists, in which
	// case it returns ErrDuplicate. The check and the insert are atomic.
	Create(ctx context.Context, c *Credential) error
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	FindByVerificationToken(ctx context.Context, token string) (*Credential, error)
	FindByResetTokenHash(ctx context.Context, hash string) (*Credential, error)
	// Update replaces every mutable field of the record with c.ID.
	Update(ctx context.Context, c *Credential) error
	Delete(ctx context.Context, id string) error
	LogIncident(ctx context.Context, inc Incident) error
}
