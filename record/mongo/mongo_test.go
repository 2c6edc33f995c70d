package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ramppy/authkit/record"
	"github.com/ramppy/authkit/record/recordtest"
)

// Set AUTHKIT_MONGO_URI to run these tests; each run uses a fresh database
// that is dropped afterwards.
func TestStoreConformance(t *testing.T) {
	uri := os.Getenv("AUTHKIT_MONGO_URI")
	if uri == "" {
		t.Skip("AUTHKIT_MONGO_URI not set")
	}

	recordtest.Run(t, func(t *testing.T) record.Store {
		ctx := context.Background()
		name := "authkit_test_" + uuid.NewString()[:8]
		s, err := Connect(ctx, uri, name)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.users.Database().Drop(context.Background())
			_ = s.Close(context.Background())
		})
		return s
	})
}
