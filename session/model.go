package session

import "time"

// Record is one browser's session.
type Record struct {
	ID          string
	UserID      string
	Fingerprint string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the record is no longer valid at now. A record
// expires at ExpiresAt exactly.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Profile is the non-sensitive projection of a credential kept for display.
type Profile struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Company string `json:"company"`
}
