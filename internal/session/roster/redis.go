package roster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chatpulse/internal/sentinel"
	"chatpulse/internal/session/models"
)

// DefaultRedisKey is the hash that holds one JSON-encoded Entry per tenant.
const DefaultRedisKey = "chatpulse:roster"

// RedisStore keeps the roster in a single Redis hash keyed by tenant id.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

// NewRedis constructs a Redis-backed roster store. An empty key selects
// DefaultRedisKey.
func NewRedis(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Save(ctx context.Context, e Entry) error {
	existing, err := s.client.HGet(ctx, s.key, e.TenantID.String()).Result()
	switch {
	case err == nil:
		var prev Entry
		if jsonErr := json.Unmarshal([]byte(existing), &prev); jsonErr == nil && !prev.CreatedAt.IsZero() {
			e.CreatedAt = prev.CreatedAt
		}
	case err != redis.Nil:
		return fmt.Errorf("load roster entry: %w", err)
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode roster entry: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, e.TenantID.String(), raw).Err(); err != nil {
		return fmt.Errorf("save roster entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, tenantID models.TenantID) error {
	n, err := s.client.HDel(ctx, s.key, tenantID.String()).Result()
	if err != nil {
		return fmt.Errorf("delete roster entry: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	all, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	out := make([]Entry, 0, len(all))
	for field, raw := range all {
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode roster entry %q: %w", field, err)
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out, nil
}
