package authkit

import (
	"context"
	"testing"
	"time"

	"github.com/ramppy/authkit/session"
)

func TestValidateSessionWithoutSession(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := clientCtx("tab-1", browserEnv())

	if h.engine.ValidateSession(ctx) {
		t.Fatal("expected no session")
	}
	if h.engine.CurrentUser(ctx) != nil {
		t.Fatal("expected no current user")
	}
}

func TestSessionExpiresAtLifetime(t *testing.T) {
	// Tiers on the wall clock keep the entry, so expiry is decided from the
	// record itself.
	h := newTestHarnessWith(t, func(c *Config) {
		c.Session.RenewalThreshold = 0
	}, func(b *Builder) {
		b.WithSessionTiers(session.NewMemoryTier(time.Now), session.NewMemoryTier(time.Now))
	})
	ctx := clientCtx("tab-1", browserEnv())

	if _, err := h.engine.CreateSession(ctx, "u1", Profile{Name: "Ana Silva", Email: "ana@example.com"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	h.clock.Advance(30*time.Minute - time.Second)
	if !h.engine.ValidateSession(ctx) {
		t.Fatal("expected session valid just before expiry")
	}

	h.clock.Advance(time.Second)
	if h.engine.ValidateSession(ctx) {
		t.Fatal("expected session invalid at expiry")
	}
	if h.engine.CurrentUser(ctx) != nil {
		t.Fatal("expected profile cleared with expired session")
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricSessionExpired]; got != 1 {
		t.Fatalf("expected one expiry, got %d", got)
	}
}

func TestSessionRenewsNearExpiry(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := clientCtx("tab-1", browserEnv())

	rec, err := h.engine.CreateSession(ctx, "u1", Profile{Name: "Ana Silva", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	h.clock.Advance(20 * time.Minute)
	if !h.engine.ValidateSession(ctx) {
		t.Fatal("expected valid session")
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricSessionRenewed]; got != 0 {
		t.Fatalf("renewed too early: %d", got)
	}

	h.clock.Advance(6 * time.Minute)
	if !h.engine.ValidateSession(ctx) {
		t.Fatal("expected valid session")
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricSessionRenewed]; got != 1 {
		t.Fatalf("expected one renewal, got %d", got)
	}

	// Past the original expiry, alive through the renewal.
	h.clock.Advance(10 * time.Minute)
	if !h.clock.Now().After(rec.ExpiresAt) {
		t.Fatal("clock should be past the original expiry")
	}
	if !h.engine.ValidateSession(ctx) {
		t.Fatal("expected renewed session to be valid")
	}
}

func TestSessionFingerprintMismatchClearsSession(t *testing.T) {
	h := newTestHarness(t, nil)
	env := browserEnv()
	ctx := clientCtx("tab-1", env)

	if _, err := h.engine.CreateSession(ctx, "u1", Profile{Name: "Ana Silva", Email: "ana@example.com"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	other := env
	other.UserAgent = "curl/8.5.0"
	if h.engine.ValidateSession(clientCtx("tab-1", other)) {
		t.Fatal("expected mismatch to invalidate")
	}
	if h.engine.ValidateSession(ctx) {
		t.Fatal("expected session cleared after mismatch")
	}

	h.engine.Close()
	incidents := h.records.Incidents()
	if len(incidents) != 1 || incidents[0].Type != IncidentFingerprintMismatch {
		t.Fatalf("expected mismatch incident, got %+v", incidents)
	}
	if incidents[0].UserAgent != "curl/8.5.0" {
		t.Fatalf("expected offending user agent, got %q", incidents[0].UserAgent)
	}
}

func TestSessionsAreIsolatedPerClient(t *testing.T) {
	h := newTestHarness(t, nil)
	a := clientCtx("tab-a", browserEnv())
	b := clientCtx("tab-b", browserEnv())

	if _, err := h.engine.CreateSession(a, "u1", Profile{Name: "Ana Silva", Email: "ana@example.com"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if h.engine.ValidateSession(b) {
		t.Fatal("client b must not see client a's session")
	}

	h.engine.Logout(a)
	if h.engine.ValidateSession(a) {
		t.Fatal("expected logout to clear the session")
	}
	if h.engine.CurrentUser(a) != nil {
		t.Fatal("expected logout to clear the profile")
	}
}

func TestCorruptSessionIsCleared(t *testing.T) {
	tier := session.NewMemoryTier(time.Now)
	h := newTestHarnessWith(t, nil, func(b *Builder) {
		b.WithSessionTiers(tier, session.NewMemoryTier(time.Now))
	})
	ctx := clientCtx("tab-1", browserEnv())

	if err := tier.Set(context.Background(), "as:tab-1", []byte{0xff, 0x00}, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if h.engine.ValidateSession(ctx) {
		t.Fatal("corrupt session must not validate")
	}
	if _, err := tier.Get(context.Background(), "as:tab-1"); err != session.ErrNotFound {
		t.Fatalf("expected corrupt entry deleted, got %v", err)
	}
}

func TestDefaultClientWithoutContext(t *testing.T) {
	h := newTestHarness(t, nil)
	ctx := context.Background()

	if _, err := h.engine.CreateSession(ctx, "u1", Profile{Name: "Ana Silva", Email: "ana@example.com"}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if !h.engine.ValidateSession(ctx) {
		t.Fatal("expected default client session to validate")
	}
}
