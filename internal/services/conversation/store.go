package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/deepgram/parley/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	storageKey     = "chatHistory"
	persistTimeout = 5 * time.Second
)

// Store is the ordered transcript. Memory is authoritative; the durable copy
// is a single JSON list written shortly after the last change.
type Store struct {
	store    storage.Store
	debounce time.Duration

	mu         sync.Mutex
	messages   []models.Message
	timer      *time.Timer
	generation uint64
	dirty      bool

	// serializes durable writes with Clear
	persistMu sync.Mutex
}

func NewStore(store storage.Store, debounce time.Duration) *Store {
	return &Store{
		store:    store,
		debounce: debounce,
	}
}

// Append validates and commits msg, then schedules a durable write.
func (s *Store) Append(msg models.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("appending message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	s.dirty = true
	s.schedulePersist()
	return nil
}

// Replace swaps the in-memory transcript wholesale. It is meant for reloads
// and does not write to the durable store.
func (s *Store) Replace(messages []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append([]models.Message(nil), messages...)
}

// Load reads the durable transcript and makes it the in-memory one. A missing
// or unreadable record yields an empty transcript.
func (s *Store) Load(ctx context.Context) []models.Message {
	var messages []models.Message

	data, err := s.store.Get(ctx, storageKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		log.Error().Str("component", logger.STORE).Err(err).Msg("Failed to read transcript")
	default:
		if err := json.Unmarshal([]byte(data), &messages); err != nil {
			log.Warn().Str("component", logger.STORE).Err(err).Msg("Discarding corrupt transcript")
			messages = nil
		}
	}

	s.Replace(messages)
	log.Debug().Str("component", logger.STORE).Int("messages", len(messages)).Msg("Transcript loaded")
	return s.Messages()
}

// Clear empties memory and the durable record. A write that was scheduled or
// running before the clear cannot bring the old transcript back.
func (s *Store) Clear(ctx context.Context) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
	s.messages = nil
	s.dirty = false
	s.mu.Unlock()

	if err := s.store.Delete(ctx, storageKey); err != nil {
		log.Error().Str("component", logger.STORE).Err(err).Msg("Failed to delete transcript")
	}
}

// Messages returns a copy of the transcript in commit order.
func (s *Store) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message{}, s.messages...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Flush writes any pending change now.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	generation := s.generation
	s.mu.Unlock()

	return s.persist(ctx, generation)
}

// caller holds s.mu
func (s *Store) schedulePersist() {
	if s.timer != nil {
		s.timer.Stop()
	}
	generation := s.generation
	s.timer = time.AfterFunc(s.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		_ = s.persist(ctx, generation)
	})
}

func (s *Store) persist(ctx context.Context, generation uint64) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if generation != s.generation || !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := append([]models.Message{}, s.messages...)
	s.dirty = false
	s.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	if err := s.store.Set(ctx, storageKey, string(data)); err != nil {
		s.mu.Lock()
		if generation == s.generation {
			s.dirty = true
		}
		s.mu.Unlock()

		log.Error().Str("component", logger.STORE).Err(err).Int("messages", len(snapshot)).Msg("Failed to persist transcript")
		return fmt.Errorf("persisting transcript: %w", err)
	}

	log.Debug().Str("component", logger.STORE).Int("messages", len(snapshot)).Msg("Transcript persisted")
	return nil
}
