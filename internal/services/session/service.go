package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/deepgram/parley/internal/logger"
	"github.com/deepgram/parley/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	storageKey = "sessionId"
	idPrefix   = "sess_"
)

// Session is the single logical conversation a client instance takes part in.
type Session struct {
	ID        string
	CreatedAt time.Time
}

// Manager owns the session identifier. The id lives in memory and is mirrored
// to the durable store; once the store fails, the id is kept in memory only.
type Manager struct {
	store storage.Store

	mu       sync.Mutex
	current  *Session
	degraded bool
}

func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// GetOrCreate returns the in-memory id, then the persisted id, and otherwise
// synthesizes and persists a new one. It never returns an empty string.
func (m *Manager) GetOrCreate(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return m.current.ID
	}

	if !m.degraded {
		id, err := m.store.Get(ctx, storageKey)
		switch {
		case err == nil && id != "":
			m.current = &Session{ID: id, CreatedAt: createdAt(id)}
			log.Debug().Str("component", logger.SESSION).Str("session_id", id).Msg("Restored session")
			return id
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			m.degrade(err, "read")
		}
	}

	id := NewID()
	m.current = &Session{ID: id, CreatedAt: time.Now().UTC()}
	m.persist(ctx, id)

	log.Info().Str("component", logger.SESSION).Str("session_id", id).Msg("Created session")
	return id
}

// Adopt makes the server supplied id authoritative. sentID is the id the
// request was sent with; if the session was cleared or replaced since, the
// server id belongs to a conversation that no longer exists and is ignored.
func (m *Manager) Adopt(ctx context.Context, sentID, serverID string) bool {
	if serverID == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || m.current.ID != sentID {
		log.Debug().Str("component", logger.SESSION).Str("server_id", serverID).Msg("Ignoring server session id for a stale session")
		return false
	}
	if serverID == sentID {
		return true
	}

	m.current = &Session{ID: serverID, CreatedAt: time.Now().UTC()}
	m.persist(ctx, serverID)

	log.Info().Str("component", logger.SESSION).Str("previous_id", sentID).Str("session_id", serverID).Msg("Adopted server session id")
	return true
}

// Clear discards the identifier in memory and in the durable store.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil
	if m.degraded {
		return
	}
	if err := m.store.Delete(ctx, storageKey); err != nil {
		m.degrade(err, "delete")
	}
}

// ID returns the current identifier without creating one.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.ID
}

func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Session{}, false
	}
	return *m.current, true
}

// Degraded reports whether the durable store has been abandoned.
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

func (m *Manager) persist(ctx context.Context, id string) {
	if m.degraded {
		return
	}
	if err := m.store.Set(ctx, storageKey, id); err != nil {
		m.degrade(err, "write")
	}
}

// caller holds m.mu
func (m *Manager) degrade(err error, op string) {
	m.degraded = true
	log.Error().
		Str("component", logger.SESSION).
		Err(err).
		Str("op", op).
		Msg("Session storage failed, keeping session id in memory only")
}

// NewID returns a fresh identifier: a UUIDv7 carries a millisecond timestamp
// followed by 74 random bits from crypto/rand. It panics if crypto/rand fails.
func NewID() string {
	return idPrefix + uuid.Must(uuid.NewV7()).String()
}

// createdAt recovers the creation time embedded in ids minted by NewID. Ids
// issued by a server carry no such timestamp and are treated as new.
func createdAt(id string) time.Time {
	parsed, err := uuid.Parse(strings.TrimPrefix(id, idPrefix))
	if err != nil || parsed.Version() != 7 {
		return time.Now().UTC()
	}
	sec, nsec := parsed.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}
