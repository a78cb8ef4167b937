package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL    = 90 * 24 * time.Hour
	defaultPrefix = "widget-studio"
)

// RedisStorage keeps preferences as JSON values with a sliding expiry.
type RedisStorage struct {
	client *goredis.Client
	ttl    time.Duration
	prefix string
}

type Option func(*RedisStorage)

func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStorage) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *RedisStorage) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *RedisStorage) {
		if client != nil {
			s.client = client
		}
	}
}

// NewRedisStorage connects to the Redis server at url (redis://...) unless
// WithClient supplies a client.
func NewRedisStorage(ctx context.Context, url string, opts ...Option) (*RedisStorage, error) {
	s := &RedisStorage{ttl: defaultTTL, prefix: defaultPrefix}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		if strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("redis url is required")
		}
		o, err := goredis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		s.client = goredis.NewClient(o)
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

func (s *RedisStorage) key(user string) string {
	return s.prefix + ":prefs:" + user
}

func (s *RedisStorage) Load(ctx context.Context, user string) (Prefs, error) {
	raw, err := s.client.GetEx(ctx, s.key(user), s.ttl).Bytes()
	if errors.Is(err, goredis.Nil) {
		return Prefs{}, ErrNotFound
	}
	if err != nil {
		return Prefs{}, fmt.Errorf("failed to load preferences: %w", err)
	}
	var p Prefs
	if err := json.Unmarshal(raw, &p); err != nil {
		return Prefs{}, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return p, nil
}

func (s *RedisStorage) Save(ctx context.Context, user string, p Prefs) error {
	raw, err := json.Marshal(p.Normalize())
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}
	if err := s.client.Set(ctx, s.key(user), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
