package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/deepgram/parley/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	storage.MemoryStore
	err   error
	calls int
}

func (f *failingStore) Get(context.Context, string) (string, error) {
	f.calls++
	return "", f.err
}

func (f *failingStore) Set(context.Context, string, string) error {
	f.calls++
	return f.err
}

func (f *failingStore) Delete(context.Context, string) error {
	f.calls++
	return f.err
}

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewManager(store)

	assert.Empty(t, m.ID())

	id := m.GetOrCreate(ctx)
	require.True(t, strings.HasPrefix(id, idPrefix))
	assert.Equal(t, id, m.GetOrCreate(ctx), "the id is stable once created")

	persisted, err := store.Get(ctx, storageKey)
	require.NoError(t, err)
	assert.Equal(t, id, persisted)

	sess, ok := m.Session()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), sess.CreatedAt, 5*time.Second)
}

func TestGetOrCreateRestoresPersistedID(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := NewManager(store).GetOrCreate(ctx)
	second := NewManager(store).GetOrCreate(ctx)

	assert.Equal(t, first, second)
}

func TestNewIDIsUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}

	parsed, err := uuid.Parse(strings.TrimPrefix(NewID(), idPrefix))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestAdopt(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewManager(store)
	local := m.GetOrCreate(ctx)

	assert.False(t, m.Adopt(ctx, local, ""), "empty server ids are ignored")
	assert.Equal(t, local, m.ID())

	assert.True(t, m.Adopt(ctx, local, "server-1"))
	assert.Equal(t, "server-1", m.ID())

	persisted, err := store.Get(ctx, storageKey)
	require.NoError(t, err)
	assert.Equal(t, "server-1", persisted)

	assert.False(t, m.Adopt(ctx, local, "server-2"), "stale sent id does not overwrite")
	assert.Equal(t, "server-1", m.ID())
}

func TestAdoptAfterClearIsIgnored(t *testing.T) {
	ctx := context.Background()
	m := NewManager(storage.NewMemoryStore())
	sent := m.GetOrCreate(ctx)

	m.Clear(ctx)
	assert.False(t, m.Adopt(ctx, sent, "server-1"))
	assert.Empty(t, m.ID())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	m := NewManager(store)
	before := m.GetOrCreate(ctx)

	m.Clear(ctx)
	assert.Empty(t, m.ID())
	_, err := store.Get(ctx, storageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	after := m.GetOrCreate(ctx)
	assert.NotEqual(t, before, after)
}

func TestStorageFailureDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{err: errors.New("disk full")}
	m := NewManager(store)

	id := m.GetOrCreate(ctx)
	assert.NotEmpty(t, id)
	assert.True(t, m.Degraded())
	assert.Equal(t, 1, store.calls, "no durable write after the failed read")

	assert.Equal(t, id, m.GetOrCreate(ctx))
	assert.True(t, m.Adopt(ctx, id, "server-1"))
	m.Clear(ctx)
	assert.Equal(t, 1, store.calls)
}

func TestCreatedAtFromID(t *testing.T) {
	before := time.Now().Add(-time.Second)
	got := createdAt(NewID())
	assert.True(t, got.After(before))
	assert.WithinDuration(t, time.Now(), createdAt("opaque-server-id"), 5*time.Second)
}
