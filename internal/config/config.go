package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deepgram/parley/internal/logger"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Transport modes accepted by CHAT_MODE.
const (
	ModeWebSocket = "websocket"
	ModeHTTP      = "http"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"
)

type Config struct {
	Chat    ChatConfig    `yaml:"chat"`
	Storage StorageConfig `yaml:"storage"`
	Server  ServerConfig  `yaml:"server"`
}

// ChatConfig holds the client side transport settings
type ChatConfig struct {
	APIURL            string        `yaml:"api_url"`
	WSURL             string        `yaml:"ws_url"`
	Mode              string        `yaml:"mode"`
	MaxMessageLength  int           `yaml:"max_message_length"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ResyncTimeout     time.Duration `yaml:"resync_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	PersistDebounce   time.Duration `yaml:"persist_debounce"`
}

// StorageConfig selects the durable key-value collaborator
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	KeyPrefix     string `yaml:"key_prefix"`
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
}

// ServerConfig holds the development backend settings
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	OpenAIKey      string        `yaml:"openai_key"`
	OpenAIModel    string        `yaml:"openai_model"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// Default mirrors the values the mobile client shipped with.
func Default() Config {
	return Config{
		Chat: ChatConfig{
			APIURL:            "http://localhost:7071",
			WSURL:             "ws://localhost:7071/ws/chat",
			Mode:              ModeWebSocket,
			MaxMessageLength:  2000,
			ReconnectAttempts: 3,
			ReconnectDelay:    2 * time.Second,
			ConnectTimeout:    10 * time.Second,
			ResyncTimeout:     time.Second,
			RequestTimeout:    30 * time.Second,
			PersistDebounce:   250 * time.Millisecond,
		},
		Storage: StorageConfig{
			Backend:   StorageMemory,
			Path:      "parley.db",
			KeyPrefix: "parley:",
		},
		Server: ServerConfig{
			Addr:           ":7071",
			OpenAIModel:    "gpt-4o-mini",
			SessionTimeout: 30 * time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// PARLEY_CONFIG, and finally the environment.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("PARLEY_CONFIG"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
		log.Info().Str("component", logger.CONFIG).Str("path", path).Msg("Configuration file loaded")
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Chat.APIURL = GetEnvOrDefault("CHAT_API_URL", cfg.Chat.APIURL)
	cfg.Chat.WSURL = GetEnvOrDefault("CHAT_WS_URL", cfg.Chat.WSURL)
	cfg.Chat.Mode = strings.ToLower(GetEnvOrDefault("CHAT_MODE", cfg.Chat.Mode))
	cfg.Chat.MaxMessageLength = parseEnvInt("CHAT_MAX_MESSAGE_LENGTH", cfg.Chat.MaxMessageLength)
	cfg.Chat.ReconnectAttempts = parseEnvInt("CHAT_RECONNECT_ATTEMPTS", cfg.Chat.ReconnectAttempts)
	cfg.Chat.ReconnectDelay = parseEnvDuration("CHAT_RECONNECT_DELAY", cfg.Chat.ReconnectDelay)
	cfg.Chat.ConnectTimeout = parseEnvDuration("CHAT_CONNECT_TIMEOUT", cfg.Chat.ConnectTimeout)
	cfg.Chat.ResyncTimeout = parseEnvDuration("CHAT_RESYNC_TIMEOUT", cfg.Chat.ResyncTimeout)
	cfg.Chat.RequestTimeout = parseEnvDuration("CHAT_REQUEST_TIMEOUT", cfg.Chat.RequestTimeout)
	cfg.Chat.PersistDebounce = parseEnvDuration("CHAT_PERSIST_DEBOUNCE", cfg.Chat.PersistDebounce)

	cfg.Storage.Backend = strings.ToLower(GetEnvOrDefault("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.Path = GetEnvOrDefault("STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.KeyPrefix = GetEnvOrDefault("STORAGE_KEY_PREFIX", cfg.Storage.KeyPrefix)
	cfg.Storage.RedisURL = GetEnvOrDefault("REDIS_URL", cfg.Storage.RedisURL)
	cfg.Storage.RedisPassword = GetEnvOrDefault("REDIS_PASSWORD", cfg.Storage.RedisPassword)

	cfg.Server.Addr = GetEnvOrDefault("SERVER_ADDR", cfg.Server.Addr)
	cfg.Server.OpenAIKey = GetEnvOrDefault("OPENAI_KEY", cfg.Server.OpenAIKey)
	cfg.Server.OpenAIModel = GetEnvOrDefault("OPENAI_MODEL", cfg.Server.OpenAIModel)
	cfg.Server.SessionTimeout = parseEnvDuration("SESSION_TIMEOUT", cfg.Server.SessionTimeout)
}

// Validate checks the fields the services cannot start without.
func (c *Config) Validate() error {
	switch c.Chat.Mode {
	case ModeWebSocket, ModeHTTP:
	default:
		return fmt.Errorf("chat.mode must be %q or %q, got %q", ModeWebSocket, ModeHTTP, c.Chat.Mode)
	}
	if c.Chat.APIURL == "" {
		return fmt.Errorf("chat.api_url is required")
	}
	if c.Chat.WSURL == "" {
		return fmt.Errorf("chat.ws_url is required")
	}
	if c.Chat.ReconnectAttempts < 0 {
		return fmt.Errorf("chat.reconnect_attempts must not be negative")
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	case StorageRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// Streaming reports whether the configured mode is the websocket transport.
func (c ChatConfig) Streaming() bool {
	return c.Mode == ModeWebSocket
}
