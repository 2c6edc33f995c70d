package authkit

import (
	"errors"
	"time"

	"github.com/ramppy/authkit/password"
)

// Config holds every engine setting. Obtain defaults from DefaultConfig,
// adjust, and pass the result to Builder.WithConfig. The engine copies the
// value at Build; later changes have no effect.
type Config struct {
	Session           SessionConfig
	Password          PasswordConfig
	PasswordPolicy    password.Policy
	Login             LoginConfig
	RateLimit         RateLimitConfig
	PasswordReset     PasswordResetConfig
	EmailVerification EmailVerificationConfig
	Store             StoreConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session lifetime and storage keys.
type SessionConfig struct {
	// Lifetime is how long a new or renewed session lasts.
	Lifetime time.Duration
	// RenewalThreshold is the remaining lifetime below which a successful
	// validation extends the session by another Lifetime.
	RenewalThreshold time.Duration
	// ProfileTTL bounds how long the profile projection outlives the session.
	ProfileTTL      time.Duration
	SessionPrefix   string
	ProfilePrefix   string
	DefaultClientID string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets PBKDF2 parameters for new hashes.
type PasswordConfig struct {
	Iterations     int
	SaltLength     int
	KeyLength      int
	UpgradeOnLogin bool
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig controls lockout and the response delay applied to failed
// logins.
type LoginConfig struct {
	LockoutThreshold     int
	LockoutDuration      time.Duration
	FailureDelayMin      time.Duration
	FailureDelayMax      time.Duration
	RequireVerifiedEmail bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateRule allows MaxAttempts within any Window.
type RateRule struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimitConfig holds the per-action rules. Buckets are keyed by the
// normalized email, or by a token digest for token confirmations.
type RateLimitConfig struct {
	Signup               RateRule
	Login                RateRule
	PasswordReset        RateRule
	PasswordResetConfirm RateRule
	EmailVerification    RateRule
	// SweepInterval and Retention drive the in-memory limiter's cleanup.
	SweepInterval time.Duration
	Retention     time.Duration
	RedisPrefix   string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// PasswordResetConfig controls reset tokens.
type PasswordResetConfig struct {
	TokenTTL   time.Duration
	TokenBytes int
}

// EmailVerificationConfig controls verification tokens.
type EmailVerificationConfig struct {
	TokenBytes int
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

// StoreConfig bounds calls to the record store.
type StoreConfig struct {
	Timeout time.Duration
}

// AuditConfig controls asynchronous audit dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// PersistIncidents writes incident events to the record store's
	// security log in addition to the configured sink.
	PersistIncidents bool
}

// MetricsConfig toggles counter collection.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Lifetime:         30 * time.Minute,
			RenewalThreshold: 5 * time.Minute,
			ProfileTTL:       30 * 24 * time.Hour,
			SessionPrefix:    "as",
			ProfilePrefix:    "ap",
			DefaultClientID:  "default",
		},
		Password: PasswordConfig{
			Iterations:     100_000,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		PasswordPolicy: password.DefaultPolicy(),
		Login: LoginConfig{
			LockoutThreshold: 5,
			LockoutDuration:  30 * time.Minute,
			FailureDelayMin:  500 * time.Millisecond,
			FailureDelayMax:  1500 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Signup:               RateRule{MaxAttempts: 3, Window: 5 * time.Minute},
			Login:                RateRule{MaxAttempts: 10, Window: 5 * time.Minute},
			PasswordReset:        RateRule{MaxAttempts: 2, Window: time.Hour},
			PasswordResetConfirm: RateRule{MaxAttempts: 5, Window: 15 * time.Minute},
			EmailVerification:    RateRule{MaxAttempts: 5, Window: 15 * time.Minute},
			SweepInterval:        time.Minute,
			Retention:            5 * time.Minute,
			RedisPrefix:          "rl",
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:   time.Hour,
			TokenBytes: 32,
		},
		EmailVerification: EmailVerificationConfig{
			TokenBytes: 32,
		},
		Store: StoreConfig{
			Timeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:          true,
			BufferSize:       1024,
			DropIfFull:       true,
			PersistIncidents: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.PasswordPolicy.BlockedCommonPasswords = append([]string(nil), cfg.PasswordPolicy.BlockedCommonPasswords...)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Session.Lifetime <= 0 {
		return errors.New("Session.Lifetime must be > 0")
	}
	if c.Session.RenewalThreshold < 0 || c.Session.RenewalThreshold >= c.Session.Lifetime {
		return errors.New("Session.RenewalThreshold must be in [0, Lifetime)")
	}
	if c.Session.ProfileTTL < 0 {
		return errors.New("Session.ProfileTTL must be >= 0")
	}
	if c.Session.DefaultClientID == "" {
		return errors.New("Session.DefaultClientID must not be empty")
	}

	if c.Password.Iterations < 100_000 {
		return errors.New("Password.Iterations must be >= 100000")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password.SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password.KeyLength must be >= 16")
	}

	if c.PasswordPolicy.MinLength < 8 {
		return errors.New("PasswordPolicy.MinLength must be >= 8")
	}
	if c.PasswordPolicy.MaxLength != 0 && c.PasswordPolicy.MaxLength < c.PasswordPolicy.MinLength {
		return errors.New("PasswordPolicy.MaxLength must be >= MinLength")
	}

	if c.Login.LockoutThreshold <= 0 {
		return errors.New("Login.LockoutThreshold must be > 0")
	}
	if c.Login.LockoutDuration <= 0 {
		return errors.New("Login.LockoutDuration must be > 0")
	}
	if c.Login.FailureDelayMin < 0 || c.Login.FailureDelayMax < c.Login.FailureDelayMin {
		return errors.New("Login failure delay range is invalid")
	}

	rules := map[string]RateRule{
		"Signup":               c.RateLimit.Signup,
		"Login":                c.RateLimit.Login,
		"PasswordReset":        c.RateLimit.PasswordReset,
		"PasswordResetConfirm": c.RateLimit.PasswordResetConfirm,
		"EmailVerification":    c.RateLimit.EmailVerification,
	}
	for name, r := range rules {
		if r.MaxAttempts <= 0 || r.Window <= 0 {
			return errors.New("RateLimit." + name + " must have positive MaxAttempts and Window")
		}
	}
	if c.RateLimit.SweepInterval <= 0 || c.RateLimit.Retention <= 0 {
		return errors.New("RateLimit.SweepInterval and Retention must be > 0")
	}

	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset.TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenBytes < 16 || c.EmailVerification.TokenBytes < 16 {
		return errors.New("token sizes must be >= 16 bytes")
	}

	if c.Store.Timeout <= 0 {
		return errors.New("Store.Timeout must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
