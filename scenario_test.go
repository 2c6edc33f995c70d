package authkit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAccountLifecycle(t *testing.T) {
	h := newTestHarness(t, nil)
	tab := clientCtx("tab-1", browserEnv())

	res := h.engine.Signup(context.Background(), SignupRequest{
		Name:     "Ana Silva",
		Email:    "ana@example.com",
		Password: "Secur3!pass",
		Company:  "Acme",
	})
	if !res.Success {
		t.Fatalf("signup failed: %q", res.Error)
	}

	res = h.engine.Login(tab, "ana@example.com", "Secur3!pass")
	if !res.Success {
		t.Fatalf("login failed: %q", res.Error)
	}
	if res.User.Name != "Ana Silva" || res.User.Email != "ana@example.com" || res.User.Company != "Acme" {
		t.Fatalf("unexpected profile %+v", res.User)
	}

	h.clock.Advance(10 * time.Minute)
	if user := h.engine.CurrentUser(tab); user == nil || user.Email != "ana@example.com" {
		t.Fatalf("expected current user, got %+v", user)
	}

	h.engine.Logout(tab)
	if h.engine.ValidateSession(tab) {
		t.Fatal("expected no session after logout")
	}

	for i := 0; i < 5; i++ {
		if res := h.engine.Login(tab, "ana@example.com", "wrong"); res.Success {
			t.Fatal("wrong password accepted")
		}
	}
	res = h.engine.Login(tab, "ana@example.com", "Secur3!pass")
	var le *LockedError
	if !errors.As(res.Err, &le) || le.RetryMinutes() <= 0 {
		t.Fatalf("expected account locked with positive minutes, got %v", res.Err)
	}
	if h.engine.ValidateSession(tab) {
		t.Fatal("locked login must not open a session")
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricSignupSuccess] != 1 || snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
	if snap.Counters[MetricAccountLocked] != 1 || snap.Counters[MetricLoginWhileLocked] != 1 {
		t.Fatalf("unexpected lock counters %+v", snap.Counters)
	}
}
