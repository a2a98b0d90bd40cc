package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// activeWindow separates active from idle sessions in Stats.
const activeWindow = time.Hour

var ErrSessionNotFound = errors.New("session not found")

// SessionClaims is the payload of the signed session id handed to clients.
type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

type session struct {
	createdAt time.Time
	updatedAt time.Time
	messages  []models.Message
}

// Stats summarizes the sessions held in memory.
type Stats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
	MaxAge   int `json:"max_age_seconds"`
}

// Service keeps the conversation history of every client session for the
// development backend. Clients only ever see a signed token for a session.
type Service struct {
	secret  []byte
	timeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
}

func NewService(secret []byte, timeout time.Duration) *Service {
	return &Service{
		secret:   secret,
		timeout:  timeout,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Open resolves id to a live session and returns the signed token for it.
// id may be a token issued by Open, a client-chosen id, or empty. A token for
// an expired session opens a new session.
func (s *Service) Open(id string) (string, error) {
	if sid, ok := s.parse(id); ok {
		if s.exists(sid) {
			return id, nil
		}
		log.Debug().Str("component", logger.SESSION).Str("sid", sid).Msg("Session expired, creating a new one")
		return s.create(uuid.NewString())
	}
	if id == "" {
		return s.create(uuid.NewString())
	}
	return s.create(id)
}

// Append adds msg to the session's history and returns the history so far.
func (s *Service) Append(token string, msg models.Message) ([]models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	sid, ok := s.parse(token)
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sid]
	if !exists {
		return nil, ErrSessionNotFound
	}
	sess.messages = append(sess.messages, msg)
	sess.updatedAt = s.now()
	return append([]models.Message(nil), sess.messages...), nil
}

func (s *Service) History(token string) ([]models.Message, error) {
	sid, ok := s.parse(token)
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[sid]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return append([]models.Message(nil), sess.messages...), nil
}

func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := Stats{Total: len(s.sessions), MaxAge: int(s.timeout.Seconds())}
	for _, sess := range s.sessions {
		if now.Sub(sess.updatedAt) < activeWindow {
			stats.Active++
		} else {
			stats.Inactive++
		}
	}
	return stats
}

// Cleanup drops sessions idle for longer than the timeout.
func (s *Service) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	deleted := 0
	for sid, sess := range s.sessions {
		if now.Sub(sess.updatedAt) > s.timeout {
			delete(s.sessions, sid)
			deleted++
		}
	}
	if deleted > 0 {
		log.Info().Str("component", logger.SESSION).Int("deleted", deleted).Dur("timeout", s.timeout).Msg("Deleted idle sessions")
	}
	return deleted
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

func (s *Service) exists(sid string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sid]
	return ok
}

// create signs a token for sid, registering the session if it is new.
func (s *Service) create(sid string) (string, error) {
	now := s.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
		SessionID: sid,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}

	s.mu.Lock()
	if _, ok := s.sessions[sid]; !ok {
		s.sessions[sid] = &session{createdAt: now, updatedAt: now}
		log.Debug().Str("component", logger.SESSION).Str("sid", sid).Msg("Created session")
	}
	s.mu.Unlock()

	return token, nil
}

func (s *Service) parse(token string) (string, bool) {
	if token == "" {
		return "", false
	}

	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		log.Debug().Str("component", logger.SESSION).Err(err).Msg("Rejected session token")
		return "", false
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.SessionID == "" {
		return "", false
	}
	return claims.SessionID, true
}
