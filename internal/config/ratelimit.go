package config

import (
	"time"

	"github.com/deepgram/parley/internal/logger"
	"github.com/rs/zerolog/log"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

func GetRateLimitConfig(key string) RateLimitConfig {
	enabled := parseEnvBool("RATELIMIT_ENABLED", false)

	configs := map[string]RateLimitConfig{
		"chat": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_CHAT", 30), // 30 messages per minute per session
			Window:  time.Minute,
		},
		"ws_connect": {
			Enabled: enabled,
			MaxHits: parseEnvInt("RATELIMIT_WS_CONNECT", 60), // 60 upgrades per minute per remote address
			Window:  time.Minute,
		},
	}

	if config, exists := configs[key]; exists {
		return config
	}

	log.Warn().Str("component", logger.CONFIG).Str("key", key).Msg("No rate limit config found")
	return RateLimitConfig{Enabled: false}
}
