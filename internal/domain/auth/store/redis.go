package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis constructs a redis-backed session store. Expiry rides on the
// key TTL so CleanupExpired has nothing to do.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "auth:session:"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &redisStore{
		client: client,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Save(ctx context.Context, session Session) error {
	if session.TokenID == "" {
		return fmt.Errorf("token id required")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	data, err := sonic.Marshal(session)
	if err != nil {
		return err
	}
	expiry := s.ttl
	if session.ExpiresAt != nil {
		expiry = time.Until(*session.ExpiresAt)
	}
	return s.client.Set(ctx, s.key(session.TokenID), data, expiry).Err()
}

func (s *redisStore) Get(ctx context.Context, tokenID string) (Session, error) {
	raw, err := s.client.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Session{}, fmt.Errorf("session not found: %s", tokenID)
		}
		return Session{}, err
	}
	var session Session
	if err := sonic.Unmarshal(raw, &session); err != nil {
		return Session{}, err
	}
	if session.ExpiresAt != nil && time.Now().After(*session.ExpiresAt) {
		_ = s.Remove(ctx, tokenID)
		return Session{}, fmt.Errorf("session expired: %s", tokenID)
	}
	return session, nil
}

func (s *redisStore) Remove(ctx context.Context, tokenID string) error {
	return s.client.Del(ctx, s.key(tokenID)).Err()
}

func (s *redisStore) List(ctx context.Context) ([]string, error) {
	var cursor uint64
	keys := make([]string, 0)
	pattern := s.prefix + "*"
	for {
		res, nextCursor, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range res {
			keys = append(keys, strings.TrimPrefix(key, s.prefix))
		}
		if nextCursor == 0 {
			break
		}
		cursor = nextCursor
	}
	return keys, nil
}

func (s *redisStore) CleanupExpired(context.Context) error {
	// Redis handles expiration via TTL.
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	size, err := s.client.DBSize(ctx).Result()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"type":  "redis",
		"total": size,
		"ttl":   int(s.ttl.Seconds()),
	}, nil
}

func (s *redisStore) Close(ctx context.Context) error {
	return s.client.Close()
}
