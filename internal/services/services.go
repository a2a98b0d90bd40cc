package services

import (
	"context"
	"fmt"

	"github.com/deepgram/parley/internal/config"
	"github.com/deepgram/parley/internal/connections"
	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/deepgram/parley/internal/services/chat"
	"github.com/deepgram/parley/internal/services/conversation"
	"github.com/deepgram/parley/internal/services/session"
	"github.com/deepgram/parley/internal/storage"
	"github.com/deepgram/parley/internal/transport/rest"
	"github.com/deepgram/parley/internal/transport/stream"
	"github.com/rs/zerolog/log"
)

// Services is the per-application context: one store, one session, one
// transcript and one coordinator, handed to whatever renders the chat.
type Services struct {
	store       storage.Store
	sessions    *session.Manager
	transcript  *conversation.Store
	restClient  *rest.Client
	stream      *stream.Client
	coordinator *chat.Coordinator
}

// InitializeServices builds the client side services from cfg and reloads the
// persisted transcript.
func InitializeServices(ctx context.Context, cfg *config.Config, listener chat.Listener) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("initializing services: nil config")
	}
	log.Info().Str("component", logger.SERVICE).Msg("Initializing core services")

	store := storage.Open(ctx, cfg.Storage)

	sessions := session.NewManager(store)
	transcript := conversation.NewStore(store, cfg.Chat.PersistDebounce)
	loaded := transcript.Load(ctx)
	if len(loaded) > 0 {
		// a restored transcript belongs to the restored session
		sessions.GetOrCreate(ctx)
	}
	log.Info().Str("component", logger.SERVICE).Int("messages", len(loaded)).Msg("Transcript restored")

	restClient := rest.NewClient(cfg.Chat.APIURL, cfg.Chat.RequestTimeout, sessions)
	streamClient := stream.NewClient(stream.Config{
		URL:               cfg.Chat.WSURL,
		ReconnectAttempts: cfg.Chat.ReconnectAttempts,
		ReconnectDelay:    cfg.Chat.ReconnectDelay,
		HandshakeTimeout:  cfg.Chat.ConnectTimeout,
		ResyncTimeout:     cfg.Chat.ResyncTimeout,
		Timeouts:          connections.DefaultTimeouts,
	})

	mode := chat.ModeRequest
	if cfg.Chat.Streaming() {
		mode = chat.ModeStreaming
	}
	coordinator := chat.NewCoordinator(sessions, transcript, restClient, streamClient, chat.CoordinatorConfig{
		Mode:             mode,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		Listener:         listener,
	})

	log.Info().Str("component", logger.SERVICE).Str("mode", mode.String()).Msg("All services initialized successfully")

	return &Services{
		store:       store,
		sessions:    sessions,
		transcript:  transcript,
		restClient:  restClient,
		stream:      streamClient,
		coordinator: coordinator,
	}, nil
}

// GetCoordinator returns the send/clear/mode entry point
func (s *Services) GetCoordinator() *chat.Coordinator {
	return s.coordinator
}

// GetSessionManager returns the session manager
func (s *Services) GetSessionManager() *session.Manager {
	return s.sessions
}

// GetTranscript returns the committed messages in order
func (s *Services) GetTranscript() []models.Message {
	return s.transcript.Messages()
}

// Close drops the duplex connection, writes any pending transcript change and
// releases the store.
func (s *Services) Close(ctx context.Context) error {
	s.stream.Close()

	var flushErr error
	if err := s.transcript.Flush(ctx); err != nil {
		flushErr = fmt.Errorf("flushing transcript: %w", err)
	}
	if err := s.store.Close(); err != nil && flushErr == nil {
		return fmt.Errorf("closing store: %w", err)
	}
	return flushErr
}
