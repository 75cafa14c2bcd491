package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hwgrader/internal/models"
	"hwgrader/internal/redis"
)

const keyPrefix = "hwgrader:session:"

// RedisStore keeps sessions as JSON values whose redis TTL matches ExpiresAt.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func sessionKey(id string) string {
	return keyPrefix + id
}

func (r *RedisStore) Save(ctx context.Context, s *models.EvaluationSession) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", s.ID)
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), payload, ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.EvaluationSession, error) {
	payload, err := r.client.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s models.EvaluationSession
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id))
}
