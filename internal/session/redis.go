package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"lprview/internal/config"
	"lprview/internal/domain"
)

const redisKeyPrefix = "lprview:session:"

// RedisStore keeps sessions as JSON values whose TTL is refreshed on every Put.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisStore(cfg *config.RedisConfig, ttl time.Duration, log *zap.Logger) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisStore{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*domain.ViewState, error) {
	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return newState(), nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	state := newState()
	if err := json.Unmarshal(data, state); err != nil {
		// an unreadable entry is treated as a torn-down view
		s.log.Warn("Discarding unreadable session",
			zap.String("session", id),
			zap.Error(err))
		return newState(), nil
	}
	if state.Results == nil {
		state.Results = []domain.DetectionResult{}
	}

	return state, nil
}

func (s *RedisStore) Put(ctx context.Context, id string, state *domain.ViewState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}
