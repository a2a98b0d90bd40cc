package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/deepgram/parley/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "chatHistory")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "chatHistory", `[]`))
	value, err := store.Get(ctx, "chatHistory")
	require.NoError(t, err)
	assert.Equal(t, `[]`, value)

	require.NoError(t, store.Delete(ctx, "chatHistory"))
	_, err = store.Get(ctx, "chatHistory")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "never-written"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestOpenSQLite(t *testing.T) {
	cfg := config.StorageConfig{
		Backend:   config.StorageSQLite,
		Path:      filepath.Join(t.TempDir(), "parley.db"),
		KeyPrefix: "test:",
	}

	store := Open(context.Background(), cfg)
	defer store.Close()

	require.IsType(t, &SQLiteStore{}, store)
	exerciseStore(t, store)
}

func TestOpenFallsBackToMemory(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"memory", config.StorageConfig{Backend: config.StorageMemory}},
		{"unreachable redis", config.StorageConfig{Backend: config.StorageRedis, RedisURL: "127.0.0.1:1"}},
		{"unknown backend", config.StorageConfig{Backend: "floppy"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			store := Open(ctx, tt.cfg)
			assert.IsType(t, &MemoryStore{}, store)
		})
	}
}
