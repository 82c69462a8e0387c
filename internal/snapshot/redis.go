package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "rehearse:snapshot"

// RedisStore keeps snapshots in Redis as JSON strings set with an expiry.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

// RedisOption configures a [RedisStore].
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key namespace. Default: "rehearse:snapshot".
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) { s.keyPrefix = p }
}

// NewRedisStore returns a RedisStore using client. Entries expire ttl after
// their last save.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &RedisStore{client: client, keyPrefix: defaultKeyPrefix, ttl: ttl}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + ":" + sessionID
}

// Save implements [Store].
func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: marshal %q: %w", snap.SessionID, err)
	}
	if err := s.client.Set(ctx, s.key(snap.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot: save %q: %w", snap.SessionID, err)
	}
	return nil
}

// Load implements [Store].
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: load %q: %w", sessionID, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal %q: %w", sessionID, err)
	}
	return &snap, nil
}

// Delete implements [Store].
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("snapshot: delete %q: %w", sessionID, err)
	}
	return nil
}

// Ping checks connectivity. It satisfies the readiness check signature.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("snapshot: ping: %w", err)
	}
	return nil
}
