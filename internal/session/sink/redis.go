package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chatpulse/internal/session/models"
)

// RedisEnvelope is the pub/sub payload. Origin names the instance that
// produced the event so consumers can ignore their own.
type RedisEnvelope struct {
	Origin string       `json:"origin"`
	Event  models.Event `json:"event"`
}

// RedisPublisher mirrors events onto a Redis pub/sub channel.
type RedisPublisher struct {
	client  redis.Cmdable
	channel string
	origin  string
}

func NewRedisPublisher(client redis.Cmdable, channel, origin string) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if channel == "" {
		return nil, errors.New("redis channel is required")
	}
	return &RedisPublisher{client: client, channel: channel, origin: origin}, nil
}

func (p *RedisPublisher) Name() string {
	return "redis"
}

func (p *RedisPublisher) Publish(ctx context.Context, evt models.Event) error {
	payload, err := json.Marshal(RedisEnvelope{Origin: p.origin, Event: evt})
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
