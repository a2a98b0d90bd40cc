package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/deepgram/parley/internal/logger"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Service is a single-table key-value store on top of SQLite, used to keep the
// session id and transcript on the local machine.
type Service struct {
	db *sql.DB
}

// NewService opens (and creates, if needed) the database at path.
func NewService(path string) (*Service, error) {
	if path == "" {
		return nil, errors.New("sqlite kv store: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "sqlite kv store: create directory")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite kv store: open")
	}
	// one writer keeps SQLITE_BUSY out of the debounced persist path
	db.SetMaxOpenConns(1)

	s := &Service{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("component", logger.SQLITE).Str("path", path).Msg("SQLite store initialized")
	return s, nil
}

func (s *Service) migrate() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return errors.Wrap(err, "sqlite kv store: enable WAL")
	}
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_ms INTEGER NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(err, "sqlite kv store: create schema")
	}
	return nil
}

// Get returns the stored value; found is false when the key does not exist.
func (s *Service) Get(ctx context.Context, key string) (value string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "sqlite kv store: get")
	}
	return value, true, nil
}

// Set inserts or replaces the value stored under key.
func (s *Service) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at_ms = excluded.updated_at_ms
	`, key, value, time.Now().UnixMilli())
	if err != nil {
		return errors.Wrap(err, "sqlite kv store: set")
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Service) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, "sqlite kv store: delete")
	}
	return nil
}

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
