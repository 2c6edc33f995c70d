package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramppy/authkit/record"
	"github.com/ramppy/authkit/record/recordtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	recordtest.Run(t, func(t *testing.T) record.Store { return newTestStore(t) })
}

func TestIncidentsArePersisted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, s.LogIncident(ctx, record.Incident{
			Type:      "ACCOUNT_LOCKED",
			Details:   map[string]string{"email": "ana@example.com"},
			Timestamp: time.Now(),
		}))
	}
	require.NoError(t, s.LogIncident(ctx, record.Incident{Type: "SCRIPT_INJECTION_ATTEMPT", Timestamp: time.Now()}))

	n, err := s.CountIncidents(ctx, "ACCOUNT_LOCKED")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
