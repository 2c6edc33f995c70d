package authkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ramppy/authkit/internal/audit"
	"github.com/ramppy/authkit/record"
	"github.com/ramppy/authkit/record/memory"
)

type captureSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *captureSink) Emit(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

func TestAuditEventsCarryClientFields(t *testing.T) {
	sink := &captureSink{}
	h := newTestHarnessWith(t, nil, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	signupAna(t, h)

	ctx := WithClientIP(clientCtx("tab-1", browserEnv()), "198.51.100.33")
	h.engine.Login(ctx, "ana@example.com", "super-Secret-1")
	h.engine.Close()

	var found bool
	for _, ev := range sink.Events() {
		if ev.EventType != EventLoginFailure {
			continue
		}
		found = true
		if ev.IP != "198.51.100.33" {
			t.Fatalf("expected IP, got %q", ev.IP)
		}
		if ev.UserAgent != browserEnv().UserAgent {
			t.Fatalf("expected user agent, got %q", ev.UserAgent)
		}
		if !ev.Timestamp.Equal(h.clock.Now()) {
			t.Fatalf("expected engine clock timestamp, got %v", ev.Timestamp)
		}
		if strings.Contains(ev.Error, "super-Secret-1") {
			t.Fatal("password leaked into audit error")
		}
		for _, v := range ev.Metadata {
			if v == "super-Secret-1" {
				t.Fatal("password leaked into audit metadata")
			}
		}
	}
	if !found {
		t.Fatal("expected a login failure event")
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := &captureSink{}
	h := newTestHarnessWith(t, func(c *Config) {
		c.Audit.Enabled = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	signupAna(t, h)
	h.engine.Login(context.Background(), "ana@example.com", "nope")
	h.engine.Close()

	if n := len(sink.Events()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
	if n := len(h.records.Incidents()); n != 0 {
		t.Fatalf("expected no incidents, got %d", n)
	}
}

func TestIncidentsNotPersistedWhenDisabled(t *testing.T) {
	sink := &captureSink{}
	h := newTestHarnessWith(t, func(c *Config) {
		c.Audit.PersistIncidents = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
	signupAna(t, h)
	for i := 0; i < 5; i++ {
		h.engine.Login(context.Background(), "ana@example.com", "nope")
	}
	h.engine.Close()

	if n := len(h.records.Incidents()); n != 0 {
		t.Fatalf("expected no stored incidents, got %d", n)
	}
	var locked int
	for _, ev := range sink.Events() {
		if ev.EventType == IncidentAccountLocked && ev.Incident {
			locked++
		}
	}
	if locked != 1 {
		t.Fatalf("expected lock incident on the sink, got %d", locked)
	}
}

func TestJSONWriterSinkThroughEngine(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	h := newTestHarnessWith(t, nil, func(b *Builder) {
		b.WithAuditSink(NewJSONWriterSink(&lockedWriter{mu: &mu, w: &buf}))
	})
	signupAna(t, h)
	h.engine.Close()

	mu.Lock()
	defer mu.Unlock()
	line, _, _ := strings.Cut(buf.String(), "\n")
	var ev map[string]any
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", line, err)
	}
	if len(ev) == 0 {
		t.Fatal("expected populated event")
	}
}

func TestAuditSinkPanicDoesNotStopEngine(t *testing.T) {
	h := newTestHarnessWith(t, nil, func(b *Builder) {
		b.WithAuditSink(panicSink{})
	})
	signupAna(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for h.engine.audit.Failed() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.engine.audit.Failed() == 0 {
		t.Fatal("expected the panic to be counted")
	}
	if res := h.engine.Login(context.Background(), "ana@example.com", "Secur3!pass"); !res.Success {
		t.Fatalf("engine stopped working after sink panic: %q", res.Error)
	}
}

type offlineSecurityLog struct {
	*memory.Store
}

func (offlineSecurityLog) LogIncident(context.Context, record.Incident) error {
	return errors.New("security log offline")
}

func TestIncidentPersistFailureIsCountedNotReturned(t *testing.T) {
	engine, err := New().
		WithRecordStore(offlineSecurityLog{memory.New()}).
		WithAuditSink(audit.NoOpSink{}).
		WithSleeper(func(context.Context, time.Duration) error { return nil }).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	res := engine.Signup(context.Background(), SignupRequest{
		Name:     "<script>alert(1)</script>",
		Email:    "ana@example.com",
		Password: "Secur3!pass",
	})
	if !errors.Is(res.Err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", res.Err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for engine.audit.Failed() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if engine.audit.Failed() == 0 {
		t.Fatal("expected the failed incident write to be counted")
	}
}

type panicSink struct{}

func (panicSink) Emit(context.Context, AuditEvent) error { panic("sink failure") }

type lockedWriter struct {
	mu *sync.Mutex
	w  *bytes.Buffer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
