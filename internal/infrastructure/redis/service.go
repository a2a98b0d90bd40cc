package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/deepgram/parley/internal/logger"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Service struct {
	client *redis.Client
}

// NewService connects to Redis. addr is either host:port or a redis:// URL.
// It returns nil when the address is empty, unparsable, or the server does not
// answer a ping, so callers can fall back to another store.
func NewService(ctx context.Context, addr, password string) *Service {
	if addr == "" {
		log.Warn().Str("component", logger.REDIS).Msg("Redis URL not configured - service will be unavailable")
		return nil
	}

	opts, err := options(addr, password)
	if err != nil {
		log.Error().Str("component", logger.REDIS).Err(err).Msg("Invalid Redis URL")
		return nil
	}
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().
			Str("component", logger.REDIS).
			Err(err).
			Str("addr", addr).
			Msg("Failed to establish Redis connection")
		_ = client.Close()
		return nil
	}

	return &Service{
		client: client,
	}
}

func options(addr, password string) (*redis.Options, error) {
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr, Password: password}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, err
	}
	if opts.Password == "" {
		opts.Password = password
	}
	return opts, nil
}

// Set stores a value in Redis with an optional expiration
func (s *Service) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if err := s.client.Set(ctx, key, value, expiration).Err(); err != nil {
		log.Error().
			Str("component", logger.REDIS).
			Err(err).
			Str("key", key).
			Dur("expiration", expiration).
			Msg("Redis SET operation failed")
		return err
	}
	return nil
}

// Get retrieves a value from Redis. found is false when the key does not exist.
func (s *Service) Get(ctx context.Context, key string) (value string, found bool, err error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		log.Error().
			Str("component", logger.REDIS).
			Err(err).
			Str("key", key).
			Msg("Redis GET operation failed")
		return "", false, err
	}
	return val, true, nil
}

// Delete removes a key from Redis
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Ping checks if Redis is accessible
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *Service) Close() error {
	return s.client.Close()
}
