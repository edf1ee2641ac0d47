package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"identity-api/config"
	"identity-api/services/logging"
)

// Service is a thin JSON cache over redis. Cache failures are surfaced as
// errors but callers treat them as misses; the cache is never authoritative.
type Service struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &Service{
		client:     client,
		defaultTTL: cfg.Redis.CacheTTL,
		logger:     logger,
	}
}

// NewServiceWithClient is used by tests to inject a miniredis-backed client.
func NewServiceWithClient(client *redis.Client, defaultTTL time.Duration, logger *logging.Service) *Service {
	return &Service{
		client:     client,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// Get unmarshals the cached value into dest. The boolean reports whether the
// key was present.
func (s *Service) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("cache get: %w", err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache decode: %w", err)
	}

	return true, nil
}

// Set stores value as JSON. A zero ttl uses the configured default.
func (s *Service) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}

	return nil
}

func (s *Service) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache remove: %w", err)
	}
	return nil
}

// RemoveByPrefix drops every key under the given prefix. Used to invalidate
// paged listings after a write.
func (s *Service) RemoveByPrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("cache remove: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan: %w", err)
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Service) Close() error {
	s.logger.Debug("closing redis connection", zap.String("addr", s.client.Options().Addr))
	return s.client.Close()
}
