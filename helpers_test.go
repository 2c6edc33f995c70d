package authkit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ramppy/authkit/internal/audit"
	"github.com/ramppy/authkit/record/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return nil
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type captureNotifier struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{
		verification: map[string]string{},
		reset:        map[string]string{},
	}
}

func (n *captureNotifier) SendVerification(_ context.Context, email, token string) error {
	n.mu.Lock()
	n.verification[email] = token
	n.mu.Unlock()
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.mu.Lock()
	n.reset[email] = token
	n.mu.Unlock()
	return nil
}

func (n *captureNotifier) ResetToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reset[email]
}

func (n *captureNotifier) VerificationToken(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.verification[email]
}

type testHarness struct {
	engine   *Engine
	records  *memory.Store
	clock    *fakeClock
	sleeper  *recordingSleeper
	notifier *captureNotifier
}

func newTestHarness(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()
	return newTestHarnessWith(t, mutate, nil)
}

func newTestHarnessWith(t *testing.T, mutate func(*Config), configure func(*Builder)) *testHarness {
	t.Helper()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	h := &testHarness{
		records:  memory.New(),
		clock:    newFakeClock(),
		sleeper:  &recordingSleeper{},
		notifier: newCaptureNotifier(),
	}
	b := New().
		WithConfig(cfg).
		WithRecordStore(h.records).
		WithClock(h.clock.Now).
		WithSleeper(h.sleeper.Sleep).
		WithNotifier(h.notifier).
		WithAuditSink(audit.NoOpSink{})
	if configure != nil {
		configure(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	h.engine = engine
	return h
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func clientCtx(id string, env Environment) context.Context {
	return WithClient(context.Background(), Client{ID: id, Env: env})
}

func browserEnv() Environment {
	return Environment{
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64)",
		Language:            "en-US",
		ScreenWidth:         1920,
		ScreenHeight:        1080,
		ColorDepth:          24,
		TimezoneOffset:      180,
		HardwareConcurrency: 8,
		Platform:            "Linux x86_64",
	}
}

func signupAna(t *testing.T, h *testHarness) {
	t.Helper()
	res := h.engine.Signup(context.Background(), SignupRequest{
		Name:     "Ana Silva",
		Email:    "ana@example.com",
		Password: "Secur3!pass",
		Company:  "Acme",
	})
	if !res.Success {
		t.Fatalf("signup failed: %s (%v)", res.Error, res.Err)
	}
}
