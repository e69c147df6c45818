package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatpulse/internal/platform/kafka/producer"
	"chatpulse/internal/session/models"
)

type fakeProducer struct {
	msgs []*producer.Message
	err  error
}

func (f *fakeProducer) Produce(_ context.Context, msg *producer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestKafkaPublisherKeysByTenant(t *testing.T) {
	prod := &fakeProducer{}
	pub, err := NewKafkaPublisher(prod, "chatpulse.session-events")
	require.NoError(t, err)

	event := evt("tenant-a", 7, models.EventMessageReceived)
	event.Payload.Message = &models.Message{ID: "m1", From: "+49", Content: "hi"}
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Len(t, prod.msgs, 1)
	msg := prod.msgs[0]
	assert.Equal(t, "chatpulse.session-events", msg.Topic)
	assert.Equal(t, []byte("tenant-a"), msg.Key)
	assert.Equal(t, "messageReceived", msg.Headers["event_type"])
	assert.Equal(t, "tenant-a-7", msg.Headers["event_id"])

	var decoded models.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event, decoded)
}

func TestKafkaPublisherPropagatesProducerErrors(t *testing.T) {
	boom := errors.New("not enough replicas")
	pub, err := NewKafkaPublisher(&fakeProducer{err: boom}, "topic")
	require.NoError(t, err)
	assert.ErrorIs(t, pub.Publish(context.Background(), evt("a", 1, models.EventStateChanged)), boom)
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic")
	assert.Error(t, err)
	_, err = NewKafkaPublisher(&fakeProducer{}, "")
	assert.Error(t, err)
}
