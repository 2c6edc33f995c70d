// Package memory is an in-process record.Store. Records are copied on the
// way in and out, so callers never share state with the store.
package memory

import (
	"context"
	"sync"

	"github.com/ramppy/authkit/record"
)

type Store struct {
	mu        sync.RWMutex
	byID      map[string]*record.Credential
	byEmail   map[string]string
	incidents []record.Incident
}

func New() *Store {
	return &Store{
		byID:    make(map[string]*record.Credential),
		byEmail: make(map[string]string),
	}
}

func clone(c *record.Credential) *record.Credential {
	out := *c
	out.LockedUntil = cloneTime(c.LockedUntil)
	out.LastLoginAt = cloneTime(c.LastLoginAt)
	out.ResetExpiresAt = cloneTime(c.ResetExpiresAt)
	return &out
}

func cloneTime[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (s *Store) Create(_ context.Context, c *record.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[c.Email]; ok {
		return record.ErrDuplicate
	}
	if _, ok := s.byID[c.ID]; ok {
		return record.ErrDuplicate
	}
	s.byID[c.ID] = clone(c)
	s.byEmail[c.Email] = c.ID
	return nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*record.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, record.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) findBy(match func(*record.Credential) bool) (*record.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.byID {
		if match(c) {
			return clone(c), nil
		}
	}
	return nil, record.ErrNotFound
}

func (s *Store) FindByVerificationToken(_ context.Context, token string) (*record.Credential, error) {
	if token == "" {
		return nil, record.ErrNotFound
	}
	return s.findBy(func(c *record.Credential) bool { return c.VerificationToken == token })
}

func (s *Store) FindByResetTokenHash(_ context.Context, hash string) (*record.Credential, error) {
	if hash == "" {
		return nil, record.ErrNotFound
	}
	return s.findBy(func(c *record.Credential) bool { return c.ResetTokenHash == hash })
}

func (s *Store) Update(_ context.Context, c *record.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[c.ID]
	if !ok {
		return record.ErrNotFound
	}
	if old.Email != c.Email {
		if _, taken := s.byEmail[c.Email]; taken {
			return record.ErrDuplicate
		}
		delete(s.byEmail, old.Email)
		s.byEmail[c.Email] = c.ID
	}
	s.byID[c.ID] = clone(c)
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return record.ErrNotFound
	}
	delete(s.byEmail, c.Email)
	delete(s.byID, id)
	return nil
}

func (s *Store) LogIncident(_ context.Context, inc record.Incident) error {
	s.mu.Lock()
	s.incidents = append(s.incidents, inc)
	s.mu.Unlock()
	return nil
}

// Incidents returns a copy of the logged incidents in insertion order.
func (s *Store) Incidents() []record.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]record.Incident(nil), s.incidents...)
}
