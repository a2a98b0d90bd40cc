package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "kv.db")

	s, err := NewService(path)
	require.NoError(t, err)

	_, found, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Set(ctx, "sessionId", "sess_1"))
	require.NoError(t, s.Set(ctx, "sessionId", "sess_2"))

	value, found, err := s.Get(ctx, "sessionId")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "sess_2", value)

	require.NoError(t, s.Close())

	reopened, err := NewService(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, found, err = reopened.Get(ctx, "sessionId")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "sess_2", value)

	require.NoError(t, reopened.Delete(ctx, "sessionId"))
	require.NoError(t, reopened.Delete(ctx, "sessionId"))
	_, found, err = reopened.Get(ctx, "sessionId")
	require.NoError(t, err)
	require.False(t, found)
}

func TestNewServiceRejectsEmptyPath(t *testing.T) {
	_, err := NewService("")
	require.Error(t, err)
}
