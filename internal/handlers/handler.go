package handlers

import (
	"time"

	"github.com/deepgram/parley/internal/config"
	"github.com/deepgram/parley/internal/connections"
	"github.com/deepgram/parley/internal/services/history"
	"github.com/deepgram/parley/internal/services/responder"
	"github.com/deepgram/parley/pkg/ratelimit"
)

const (
	chatTimeout   = 30 * time.Second
	streamTimeout = 60 * time.Second
	maxFrameSize  = 64 << 10
)

// Options tunes the development backend.
type Options struct {
	Version         string
	CleanupInterval time.Duration
}

// Handler serves the development chat backend: the one-shot chat endpoint,
// the streaming websocket and a health report.
type Handler struct {
	history     *history.Service
	responder   responder.Responder
	connections *connections.Manager

	messageLimit   config.RateLimitConfig
	messageLimiter *ratelimit.Limiter

	version         string
	cleanupInterval time.Duration
	started         time.Time
}

func NewHandler(hist *history.Service, resp responder.Responder, conns *connections.Manager, opts Options) *Handler {
	limit := config.GetRateLimitConfig("chat")
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Handler{
		history:         hist,
		responder:       resp,
		connections:     conns,
		messageLimit:    limit,
		messageLimiter:  ratelimit.NewLimiter(limit.Window, limit.MaxHits),
		version:         opts.Version,
		cleanupInterval: opts.CleanupInterval,
		started:         time.Now(),
	}
}

// allowMessage applies the per client message limit to websocket frames.
// HTTP requests are limited by middleware instead.
func (h *Handler) allowMessage(key string) bool {
	if !h.messageLimit.Enabled {
		return true
	}
	return h.messageLimiter.Allow(key)
}
