// Package recordtest is a conformance suite shared by every record.Store
// implementation.
package recordtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramppy/authkit/record"
)

// Run exercises store against the record.Store contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) record.Store) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("TokenLookups", func(t *testing.T) { testTokenLookups(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("LogIncident", func(t *testing.T) { testLogIncident(t, newStore(t)) })
}

// NewCredential returns a fully populated credential for email.
func NewCredential(email string) *record.Credential {
	return &record.Credential{
		ID:                uuid.NewString(),
		Name:              "Ana Silva",
		Email:             email,
		PasswordHash:      "pbkdf2$100000$00112233445566778899aabbccddeeff$" + "00",
		Company:           "Acme",
		VerificationToken: uuid.NewString(),
		CreatedAt:         time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testCreateAndFind(t *testing.T, s record.Store) {
	ctx := context.Background()
	in := NewCredential("ana@example.com")
	require.NoError(t, s.Create(ctx, in))

	got, err := s.FindByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, in.Name, got.Name)
	assert.Equal(t, in.PasswordHash, got.PasswordHash)
	assert.Equal(t, in.Company, got.Company)
	assert.False(t, got.EmailVerified)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)
	assert.Nil(t, got.LastLoginAt)
	assert.True(t, in.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", got.CreatedAt, in.CreatedAt)

	_, err = s.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func testCreateDuplicate(t *testing.T, s record.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, NewCredential("dup@example.com")))
	assert.ErrorIs(t, s.Create(ctx, NewCredential("dup@example.com")), record.ErrDuplicate)
}

func testConcurrentCreate(t *testing.T, s record.Store) {
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Create(ctx, NewCredential("race@example.com"))
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, record.ErrDuplicate)
	}
	assert.Equal(t, 1, created)
}

func testUpdate(t *testing.T, s record.Store) {
	ctx := context.Background()
	c := NewCredential("upd@example.com")
	require.NoError(t, s.Create(ctx, c))

	lock := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Millisecond)
	login := time.Now().UTC().Truncate(time.Millisecond)
	c.FailedAttempts = 3
	c.LockedUntil = &lock
	c.LastLoginAt = &login
	c.EmailVerified = true
	c.VerificationToken = ""
	require.NoError(t, s.Update(ctx, c))

	got, err := s.FindByEmail(ctx, "upd@example.com")
	require.NoError(t, err)
	assert.Equal(t, 3, got.FailedAttempts)
	require.NotNil(t, got.LockedUntil)
	assert.True(t, lock.Equal(*got.LockedUntil))
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, login.Equal(*got.LastLoginAt))
	assert.True(t, got.EmailVerified)
	assert.Empty(t, got.VerificationToken)

	c.LockedUntil = nil
	require.NoError(t, s.Update(ctx, c))
	got, err = s.FindByEmail(ctx, "upd@example.com")
	require.NoError(t, err)
	assert.Nil(t, got.LockedUntil)

	missing := NewCredential("ghost@example.com")
	assert.ErrorIs(t, s.Update(ctx, missing), record.ErrNotFound)
}

func testTokenLookups(t *testing.T, s record.Store) {
	ctx := context.Background()
	c := NewCredential("tok@example.com")
	require.NoError(t, s.Create(ctx, c))

	got, err := s.FindByVerificationToken(ctx, c.VerificationToken)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = s.FindByResetTokenHash(ctx, "deadbeef")
	assert.ErrorIs(t, err, record.ErrNotFound)

	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	c.ResetTokenHash = "deadbeef"
	c.ResetExpiresAt = &exp
	require.NoError(t, s.Update(ctx, c))

	got, err = s.FindByResetTokenHash(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	require.NotNil(t, got.ResetExpiresAt)
	assert.True(t, exp.Equal(*got.ResetExpiresAt))

	_, err = s.FindByVerificationToken(ctx, "")
	assert.ErrorIs(t, err, record.ErrNotFound)
}

func testDelete(t *testing.T, s record.Store) {
	ctx := context.Background()
	c := NewCredential("del@example.com")
	require.NoError(t, s.Create(ctx, c))
	require.NoError(t, s.Delete(ctx, c.ID))

	_, err := s.FindByEmail(ctx, "del@example.com")
	assert.ErrorIs(t, err, record.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, c.ID), record.ErrNotFound)

	// The email is free again.
	require.NoError(t, s.Create(ctx, NewCredential("del@example.com")))
}

func testLogIncident(t *testing.T, s record.Store) {
	err := s.LogIncident(context.Background(), record.Incident{
		Type:      "ACCOUNT_LOCKED",
		Details:   map[string]string{"email": "ana@example.com"},
		UserAgent: "Mozilla/5.0",
		IP:        "203.0.113.7",
		Timestamp: time.Now().UTC(),
	})
	assert.NoError(t, err)
}
