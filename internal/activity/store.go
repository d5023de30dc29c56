package activity

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the two pieces of client-local state that must survive a
// reload within the same session: the last-activity timestamp and the
// session expiry timestamp.
type Store interface {
	SaveLastActivity(ctx context.Context, at time.Time) error
	LoadLastActivity(ctx context.Context) (time.Time, error)
	SaveExpiry(ctx context.Context, at time.Time) error
	LoadExpiry(ctx context.Context) (time.Time, error)
	Clear(ctx context.Context) error
}

const (
	lastActivityKey = "portal:last_activity"
	expiryKey       = "portal:session_expiry"
)

// RedisStore implements Store on Redis. Values are RFC3339 timestamps with a
// TTL so abandoned sessions age out on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore with the given retention TTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// SaveLastActivity records the timestamp.
func (s *RedisStore) SaveLastActivity(ctx context.Context, at time.Time) error {
	return s.client.Set(ctx, lastActivityKey, at.UTC().Format(time.RFC3339Nano), s.ttl).Err()
}

// LoadLastActivity returns the stored timestamp, or zero when absent.
func (s *RedisStore) LoadLastActivity(ctx context.Context) (time.Time, error) {
	return s.load(ctx, lastActivityKey)
}

// SaveExpiry records the session expiry timestamp.
func (s *RedisStore) SaveExpiry(ctx context.Context, at time.Time) error {
	return s.client.Set(ctx, expiryKey, at.UTC().Format(time.RFC3339Nano), s.ttl).Err()
}

// LoadExpiry returns the stored expiry, or zero when absent.
func (s *RedisStore) LoadExpiry(ctx context.Context) (time.Time, error) {
	return s.load(ctx, expiryKey)
}

// Clear removes both keys.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, lastActivityKey, expiryKey).Err()
}

func (s *RedisStore) load(ctx context.Context, key string) (time.Time, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, raw)
}

var _ Store = (*RedisStore)(nil)
