package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const minSessionTTL = time.Second

// StoreConfig names the key prefixes and the profile lifetime.
type StoreConfig struct {
	SessionPrefix string
	ProfilePrefix string
	ProfileTTL    time.Duration
}

// Store persists one session record and one profile projection per client.
// Clients are opaque identifiers for a browser (a cookie value, a tab id).
type Store struct {
	sessions Tier
	profiles Tier
	cfg      StoreConfig
	now      func() time.Time
}

// NewStore builds a store over the given tiers. The same Tier may back both.
func NewStore(sessions, profiles Tier, cfg StoreConfig, now func() time.Time) *Store {
	if cfg.SessionPrefix == "" {
		cfg.SessionPrefix = "as"
	}
	if cfg.ProfilePrefix == "" {
		cfg.ProfilePrefix = "ap"
	}
	if now == nil {
		now = time.Now
	}
	return &Store{sessions: sessions, profiles: profiles, cfg: cfg, now: now}
}

func (s *Store) sessionKey(clientID string) string {
	return s.cfg.SessionPrefix + ":" + clientID
}

func (s *Store) profileKey(clientID string) string {
	return s.cfg.ProfilePrefix + ":" + clientID
}

// Save writes rec and profile for clientID. The record expires from its tier
// together with the session.
func (s *Store) Save(ctx context.Context, clientID string, rec *Record, profile Profile) error {
	if err := s.Put(ctx, clientID, rec); err != nil {
		return err
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return s.profiles.Set(ctx, s.profileKey(clientID), data, s.cfg.ProfileTTL)
}

// Put overwrites the session record for clientID without touching the
// profile. It is used for sliding renewal.
func (s *Store) Put(ctx context.Context, clientID string, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl < minSessionTTL {
		ttl = minSessionTTL
	}
	return s.sessions.Set(ctx, s.sessionKey(clientID), data, ttl)
}

// Load returns the record for clientID, ErrNotFound when there is none, or
// ErrCorrupt when the stored bytes do not decode.
func (s *Store) Load(ctx context.Context, clientID string) (*Record, error) {
	data, err := s.sessions.Get(ctx, s.sessionKey(clientID))
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Profile returns the stored projection for clientID, or nil when absent or
// unreadable.
func (s *Store) Profile(ctx context.Context, clientID string) (*Profile, error) {
	data, err := s.profiles.Get(ctx, s.profileKey(clientID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ErrCorrupt
	}
	return &p, nil
}

// Clear deletes both the record and the profile for clientID. Missing keys
// are not an error.
func (s *Store) Clear(ctx context.Context, clientID string) error {
	errSession := s.sessions.Delete(ctx, s.sessionKey(clientID))
	errProfile := s.profiles.Delete(ctx, s.profileKey(clientID))
	return errors.Join(errSession, errProfile)
}
