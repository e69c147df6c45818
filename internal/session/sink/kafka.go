package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"chatpulse/internal/platform/kafka/producer"
	"chatpulse/internal/session/models"
)

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// KafkaPublisher writes events as JSON records keyed by tenant id, so all
// events of one tenant land on the same partition in publish order.
type KafkaPublisher struct {
	producer Producer
	topic    string
}

func NewKafkaPublisher(p Producer, topic string) (*KafkaPublisher, error) {
	if p == nil {
		return nil, errors.New("kafka producer is required")
	}
	if topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	return &KafkaPublisher{producer: p, topic: topic}, nil
}

func (k *KafkaPublisher) Name() string {
	return "kafka"
}

func (k *KafkaPublisher) Publish(ctx context.Context, evt models.Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	return k.producer.Produce(ctx, &producer.Message{
		Topic: k.topic,
		Key:   []byte(evt.TenantID.String()),
		Value: value,
		Headers: map[string]string{
			"event_id":     evt.ID,
			"event_type":   string(evt.Type),
			"content_type": "application/json",
		},
	})
}
