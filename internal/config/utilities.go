package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/deepgram/parley/internal/logger"
	"github.com/rs/zerolog/log"
)

// GetEnvOrDefault returns the value of an environment variable or a default value
func GetEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" && defaultValue == "" {
		log.Debug().Str("component", logger.CONFIG).Str("key", key).Msg("Empty value and default for environment variable")
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func parseEnvInt(key string, defaultValue int) int {
	val := GetEnvOrDefault(key, "")
	if val == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		log.Warn().Str("component", logger.CONFIG).Str("key", key).Int("default", defaultValue).Msg("Invalid integer, using default")
		return defaultValue
	}

	return parsed
}

func parseEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := GetEnvOrDefault(key, "")
	if val == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(val)
	if err != nil {
		log.Warn().Str("component", logger.CONFIG).Str("key", key).Dur("default", defaultValue).Msg("Invalid duration, using default")
		return defaultValue
	}

	return parsed
}

func parseEnvBool(key string, defaultValue bool) bool {
	val := strings.ToLower(GetEnvOrDefault(key, ""))
	switch val {
	case "":
		return defaultValue
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
