//go:build integration

package sink_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"chatpulse/internal/platform/kafka/producer"
	"chatpulse/internal/session/bus"
	"chatpulse/internal/session/models"
	"chatpulse/internal/session/sink"
	"chatpulse/pkg/testutil/containers"
)

func TestMain(m *testing.M) {
	os.Exit(containers.Main(m))
}

type KafkaSinkIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestKafkaSinkIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSinkIntegrationSuite))
}

func (s *KafkaSinkIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
	prod, err := producer.New(producer.DefaultConfig(s.kafka.Brokers), nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *KafkaSinkIntegrationSuite) TearDownSuite() {
	s.producer.Close(5 * time.Second)
}

// Events of one tenant share a key and therefore a partition, so a consumer
// sees them in publish order even on a multi-partition topic.
func (s *KafkaSinkIntegrationSuite) TestRelayKeepsPerTenantOrder() {
	ctx := context.Background()
	topic := "chatpulse.session-events.it"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 3, 1))

	b := bus.New(bus.WithBuffer(256))
	pub, err := sink.NewKafkaPublisher(s.producer, topic)
	s.Require().NoError(err)
	relay, err := sink.NewRelay(b, pub)
	s.Require().NoError(err)

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	s.Eventually(func() bool { return b.Len() == 1 }, 5*time.Second, 10*time.Millisecond)

	const perTenant = 10
	for i := range perTenant {
		for _, tenant := range []models.TenantID{"tenant-a", "tenant-b"} {
			b.Publish(models.Event{
				ID:        fmt.Sprintf("%s-%02d", tenant, i),
				TenantID:  tenant,
				Type:      models.EventStateChanged,
				Timestamp: time.Now().UTC(),
			})
		}
	}

	records := containers.Await(ctx, s.kafka.Reader(s.T(), topic), 20*time.Second, 2*perTenant, nil)
	s.Require().Len(records, 2*perTenant)

	seen := map[string][]string{}
	for _, r := range records {
		var evt models.Event
		s.Require().NoError(json.Unmarshal(r.Value, &evt))
		s.Equal(string(r.Key), evt.TenantID.String())
		seen[string(r.Key)] = append(seen[string(r.Key)], evt.ID)
	}
	for tenant, ids := range seen {
		s.Len(ids, perTenant)
		for i, id := range ids {
			s.Equal(fmt.Sprintf("%s-%02d", tenant, i), id)
		}
	}

	b.Close()
	s.NoError(<-done)
}
