package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

// RedisStore persists sessions in Redis with a TTL, surviving process
// restarts and shared across instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return NewIdle(userID), nil
		}
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		// Corrupt state is dropped rather than trapping the user.
		_ = s.client.Del(ctx, keyPrefix+userID).Err()
		return NewIdle(userID), nil
	}
	return &session, nil
}

func (s *RedisStore) Put(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now()
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+session.UserID, raw, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, keyPrefix+userID).Err()
}
