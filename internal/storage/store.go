package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/deepgram/parley/internal/config"
	"github.com/deepgram/parley/internal/infrastructure/redis"
	"github.com/deepgram/parley/internal/infrastructure/sqlite"
	"github.com/deepgram/parley/internal/logger"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by Get when the key has never been written or was deleted.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable key-value collaborator behind the session id and the transcript.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
	}
}

func (ms *MemoryStore) Get(_ context.Context, key string) (string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	value, exists := ms.values[key]
	if !exists {
		return "", ErrNotFound
	}
	return value, nil
}

func (ms *MemoryStore) Set(_ context.Context, key, value string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.values[key] = value
	return nil
}

func (ms *MemoryStore) Delete(_ context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.values, key)
	return nil
}

func (ms *MemoryStore) Close() error { return nil }

// RedisStore keeps values without expiry under a shared key prefix.
type RedisStore struct {
	redisService *redis.Service
	prefix       string
}

func NewRedisStore(redisService *redis.Service, prefix string) *RedisStore {
	return &RedisStore{redisService: redisService, prefix: prefix}
}

func (rs *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, found, err := rs.redisService.Get(ctx, rs.prefix+key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

func (rs *RedisStore) Set(ctx context.Context, key, value string) error {
	return rs.redisService.Set(ctx, rs.prefix+key, value, 0)
}

func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	return rs.redisService.Delete(ctx, rs.prefix+key)
}

func (rs *RedisStore) Close() error {
	return rs.redisService.Close()
}

type SQLiteStore struct {
	db     *sqlite.Service
	prefix string
}

func NewSQLiteStore(db *sqlite.Service, prefix string) *SQLiteStore {
	return &SQLiteStore{db: db, prefix: prefix}
}

func (ss *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	value, found, err := ss.db.Get(ctx, ss.prefix+key)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotFound
	}
	return value, nil
}

func (ss *SQLiteStore) Set(ctx context.Context, key, value string) error {
	return ss.db.Set(ctx, ss.prefix+key, value)
}

func (ss *SQLiteStore) Delete(ctx context.Context, key string) error {
	return ss.db.Delete(ctx, ss.prefix+key)
}

func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}

// Open builds the configured backend. A backend that cannot be reached is
// replaced by a MemoryStore so the client still starts; state is then kept for
// the lifetime of the process only.
func Open(ctx context.Context, cfg config.StorageConfig) Store {
	switch cfg.Backend {
	case config.StorageRedis:
		if redisService := redis.NewService(ctx, cfg.RedisURL, cfg.RedisPassword); redisService != nil {
			log.Info().Str("component", logger.STORE).Str("backend", cfg.Backend).Msg("Using Redis store")
			return NewRedisStore(redisService, cfg.KeyPrefix)
		}
	case config.StorageSQLite:
		db, err := sqlite.NewService(cfg.Path)
		if err == nil {
			log.Info().Str("component", logger.STORE).Str("backend", cfg.Backend).Msg("Using SQLite store")
			return NewSQLiteStore(db, cfg.KeyPrefix)
		}
		log.Error().Str("component", logger.STORE).Err(err).Str("path", cfg.Path).Msg("Failed to open SQLite store")
	case config.StorageMemory:
		log.Info().Str("component", logger.STORE).Msg("Using in-memory store")
		return NewMemoryStore()
	}

	log.Warn().Str("component", logger.STORE).Str("backend", cfg.Backend).Msg("Falling back to in-memory store")
	return NewMemoryStore()
}
