package authkit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ramppy/authkit/internal"
	"github.com/ramppy/authkit/session"
)

// Session is a stored session record.
type Session = session.Record

// CreateSession opens a session for userID on the client in ctx, replacing
// any session that client already holds. The session is bound to the
// client's current fingerprint and expires after Session.Lifetime.
func (e *Engine) CreateSession(ctx context.Context, userID string, profile Profile) (*Session, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	client := clientFromContext(ctx, e.config.Session.DefaultClientID)

	id, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := e.now()
	rec := &Session{
		ID:          id,
		UserID:      userID,
		Fingerprint: session.Fingerprint(client.Env),
		CreatedAt:   now,
		ExpiresAt:   now.Add(e.config.Session.Lifetime),
	}

	unlock := e.clientLock.Lock(client.ID)
	defer unlock()

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.sessions.Save(sctx, client.ID, rec, profile); err != nil {
		e.metricInc(MetricStoreFailure)
		return nil, storeError(err)
	}
	e.metricInc(MetricSessionCreated)
	return rec, nil
}

// ValidateSession reports whether the client in ctx holds a live session.
// An expired, unreadable or fingerprint-mismatched session is cleared. A
// valid session with less than Session.RenewalThreshold left is extended to
// a full Session.Lifetime from now.
func (e *Engine) ValidateSession(ctx context.Context) bool {
	if !e.ready() {
		return false
	}
	client := clientFromContext(ctx, e.config.Session.DefaultClientID)

	unlock := e.clientLock.Lock(client.ID)
	defer unlock()

	sctx, cancel := e.storeContext(ctx)
	defer cancel()

	rec, err := e.sessions.Load(sctx, client.ID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return false
	case errors.Is(err, session.ErrCorrupt):
		e.logger.Warn("corrupt session cleared", slog.String("client_id", client.ID))
		e.clearSession(sctx, client.ID)
		return false
	case err != nil:
		e.metricInc(MetricStoreFailure)
		e.logger.Error("session load failed", slog.String("client_id", client.ID), slog.Any("error", err))
		return false
	}

	now := e.now()
	if rec.Expired(now) {
		e.metricInc(MetricSessionExpired)
		e.clearSession(sctx, client.ID)
		return false
	}

	if rec.Fingerprint != session.Fingerprint(client.Env) {
		e.metricInc(MetricSessionFingerprintMismatch)
		e.clearSession(sctx, client.ID)
		e.emitIncident(ctx, IncidentFingerprintMismatch, rec.UserID, map[string]string{
			"session_id": session.Digest(rec.ID),
		})
		return false
	}

	if rec.ExpiresAt.Sub(now) < e.config.Session.RenewalThreshold {
		rec.ExpiresAt = now.Add(e.config.Session.Lifetime)
		if err := e.sessions.Put(sctx, client.ID, rec); err != nil {
			e.metricInc(MetricStoreFailure)
			e.logger.Warn("session renewal failed", slog.String("client_id", client.ID), slog.Any("error", err))
		} else {
			e.metricInc(MetricSessionRenewed)
		}
	}
	return true
}

// CurrentUser returns the profile of the client's session owner, or nil
// when the session is not valid.
func (e *Engine) CurrentUser(ctx context.Context) *Profile {
	if !e.ValidateSession(ctx) {
		return nil
	}
	client := clientFromContext(ctx, e.config.Session.DefaultClientID)

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	p, err := e.sessions.Profile(sctx, client.ID)
	if err != nil {
		e.logger.Warn("profile load failed", slog.String("client_id", client.ID), slog.Any("error", err))
		return nil
	}
	return p
}

// Logout clears the session and profile held by the client in ctx.
func (e *Engine) Logout(ctx context.Context) {
	if !e.ready() {
		return
	}
	client := clientFromContext(ctx, e.config.Session.DefaultClientID)

	unlock := e.clientLock.Lock(client.ID)
	defer unlock()

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	e.clearSession(sctx, client.ID)

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, EventLogout, true, "", nil, nil)
}

func (e *Engine) clearSession(ctx context.Context, clientID string) {
	if err := e.sessions.Clear(ctx, clientID); err != nil {
		e.metricInc(MetricStoreFailure)
		e.logger.Warn("session clear failed", slog.String("client_id", clientID), slog.Any("error", err))
	}
}
