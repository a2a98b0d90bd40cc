package responder

import (
	"context"

	"github.com/deepgram/parley/internal/config"
	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/rs/zerolog/log"
)

// Token is one streamed fragment. A Token with Err set is the last one sent.
type Token struct {
	Content string
	Err     error
}

// Responder produces assistant replies for the development backend.
type Responder interface {
	// Reply returns the complete reply to the conversation so far.
	Reply(ctx context.Context, history []models.Message) (string, error)
	// Stream returns a channel of fragments that is closed when the reply is done.
	Stream(ctx context.Context, history []models.Message) (<-chan Token, error)
}

// New picks the OpenAI responder when a key is configured and the echo
// responder otherwise.
func New(cfg config.ServerConfig) Responder {
	if cfg.OpenAIKey == "" {
		log.Warn().Str("component", logger.SERVICE).Msg("OpenAI key not configured - using echo responder")
		return NewEcho(0)
	}
	log.Info().Str("component", logger.SERVICE).Str("model", cfg.OpenAIModel).Msg("Using OpenAI responder")
	return NewOpenAI(cfg.OpenAIKey, cfg.OpenAIModel)
}

func lastUserMessage(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
