package authkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ramppy/authkit/internal/audit"
	"github.com/ramppy/authkit/record"
)

// AuditEvent is one security-relevant occurrence emitted by the engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// Event types. Types in upper case are incidents and are persisted to the
// security log when Audit.PersistIncidents is set.
const (
	EventSignup                 = "signup"
	EventLoginSuccess           = "login_success"
	EventLoginFailure           = "login_failure"
	EventLogout                 = "logout"
	EventRateLimited            = "rate_limited"
	EventPasswordResetRequest   = "password_reset_request"
	EventPasswordResetConfirm   = "password_reset_confirm"
	EventEmailVerified          = "email_verified"
	IncidentAccountLocked       = "ACCOUNT_LOCKED"
	IncidentScriptInjection     = "SCRIPT_INJECTION_ATTEMPT"
	IncidentFingerprintMismatch = "SESSION_FINGERPRINT_MISMATCH"
)

// NewChannelSink returns a sink that buffers events in a channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink that writes one JSON object per line.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogSink returns a sink that logs events through logger.
func NewLogSink(logger *slog.Logger) *audit.LogSink {
	return audit.NewLogSink(logger)
}

// incidentSink copies incident events into the record store's security log.
type incidentSink struct {
	store record.Store
}

func (s incidentSink) Emit(ctx context.Context, event AuditEvent) error {
	if !event.Incident {
		return nil
	}

	details := make(map[string]string, len(event.Metadata)+1)
	for k, v := range event.Metadata {
		details[k] = v
	}
	if event.UserID != "" {
		details["user_id"] = event.UserID
	}

	if err := s.store.LogIncident(ctx, record.Incident{
		Type:      event.EventType,
		Details:   details,
		UserAgent: event.UserAgent,
		IP:        event.IP,
		Timestamp: event.Timestamp,
	}); err != nil {
		return fmt.Errorf("security log: %w", err)
	}
	return nil
}

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID string, err error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	client := clientFromContext(ctx, e.config.Session.DefaultClientID)
	event := AuditEvent{
		Timestamp: e.now(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: client.Env.UserAgent,
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) emitIncident(ctx context.Context, incidentType, userID string, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	client := clientFromContext(ctx, e.config.Session.DefaultClientID)
	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now(),
		EventType: incidentType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: client.Env.UserAgent,
		Incident:  true,
		Metadata:  metadata,
	})
}
