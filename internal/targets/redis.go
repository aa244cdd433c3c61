package targets

import (
	"context"
	"fmt"
	"signalbrief/internal/core"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLegacyStore reads targets kept as redis lists, one list per kind:
// <prefix>:<org>:competitor, <prefix>:<org>:stakeholder, <prefix>:<org>:topic.
type RedisLegacyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisLegacyStore connects to redis and verifies the connection
func NewRedisLegacyStore(ctx context.Context, redisURL, prefix string) (*RedisLegacyStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisLegacyStore{client: client, prefix: prefix}, nil
}

// legacyKey returns the list key holding one kind of target
func legacyKey(prefix, orgID string, kind core.TargetKind) string {
	if prefix == "" {
		return fmt.Sprintf("%s:%s", orgID, kind)
	}
	return fmt.Sprintf("%s:%s:%s", prefix, orgID, kind)
}

// LegacyTargets implements LegacyStore
func (s *RedisLegacyStore) LegacyTargets(ctx context.Context, orgID string) (core.TargetSet, error) {
	var set core.TargetSet
	for _, kind := range core.TargetKinds {
		names, err := s.client.LRange(ctx, legacyKey(s.prefix, orgID, kind), 0, -1).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return core.TargetSet{}, fmt.Errorf("failed to read %s targets: %w", kind, err)
		}
		for _, name := range names {
			set = appendKind(set, kind, name)
		}
	}
	return set, nil
}

// Ping checks the redis connection
func (s *RedisLegacyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the redis connection
func (s *RedisLegacyStore) Close() error {
	return s.client.Close()
}
