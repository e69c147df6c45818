package bus

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"chatpulse/internal/session/metrics"
	"chatpulse/internal/session/models"
)

type BusSuite struct {
	suite.Suite
	metrics *metrics.Metrics
	bus     *Bus
}

func TestBusSuite(t *testing.T) {
	suite.Run(t, new(BusSuite))
}

func (s *BusSuite) SetupTest() {
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.bus = New(WithBuffer(4), WithMetrics(s.metrics))
}

func event(tenant models.TenantID, seq int) models.Event {
	return models.Event{
		ID:        fmt.Sprintf("%s-%d", tenant, seq),
		TenantID:  tenant,
		Type:      models.EventStateChanged,
		Timestamp: time.Unix(int64(seq), 0),
	}
}

func drain(sub *Subscription) []models.Event {
	var out []models.Event
	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, evt)
		default:
			return out
		}
	}
}

func (s *BusSuite) TestTenantSubscriptionSeesOnlyItsTenant() {
	subA := s.bus.Subscribe("A")
	subB := s.bus.Subscribe("B")

	s.bus.Publish(event("A", 1))
	s.bus.Publish(event("B", 1))
	s.bus.Publish(event("A", 2))

	gotA := drain(subA)
	s.Require().Len(gotA, 2)
	s.Equal("A-1", gotA[0].ID)
	s.Equal("A-2", gotA[1].ID)

	gotB := drain(subB)
	s.Require().Len(gotB, 1)
	s.Equal(models.TenantID("B"), gotB[0].TenantID)
}

func (s *BusSuite) TestSubscribeAllSeesEveryTenant() {
	sub := s.bus.SubscribeAll()

	s.bus.Publish(event("A", 1))
	s.bus.Publish(event("B", 1))

	s.Len(drain(sub), 2)
}

func (s *BusSuite) TestSlowSubscriberDropsOldest() {
	slow := s.bus.Subscribe("A")
	fast := s.bus.Subscribe("A")

	for i := 1; i <= 6; i++ {
		s.bus.Publish(event("A", i))
		if i%2 == 0 {
			drain(fast)
		}
	}

	got := drain(slow)
	s.Require().Len(got, 4)
	s.Equal("A-3", got[0].ID, "oldest events are evicted first")
	s.Equal("A-6", got[3].ID)
	s.Equal(uint64(2), slow.Dropped())
	s.Equal(uint64(0), fast.Dropped())
	s.Equal(2.0, promtest.ToFloat64(s.metrics.BusDropped))
}

func (s *BusSuite) TestPublishNeverBlocksWithoutConsumers() {
	s.bus.Subscribe("A")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.bus.Publish(event("A", i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Fail("publish blocked on a full subscriber")
	}
}

func (s *BusSuite) TestCloseSubscriptionIsIdempotent() {
	sub := s.bus.Subscribe("A")
	s.Equal(1, s.bus.Len())

	sub.Close()
	sub.Close()

	s.Equal(0, s.bus.Len())
	_, ok := <-sub.C()
	s.False(ok, "channel is closed after unsubscribe")

	s.NotPanics(func() { s.bus.Publish(event("A", 1)) })
}

func (s *BusSuite) TestBusCloseEndsSubscriptions() {
	sub := s.bus.SubscribeAll()
	s.bus.Close()

	_, ok := <-sub.C()
	s.False(ok)

	late := s.bus.Subscribe("A")
	_, ok = <-late.C()
	s.False(ok, "subscriptions opened after Close start closed")
	s.NotPanics(func() { sub.Close() })
}

func (s *BusSuite) TestPerTenantOrderUnderConcurrentPublishers() {
	sub := New(WithBuffer(1000)).SubscribeAll()
	b := sub.bus

	var wg sync.WaitGroup
	tenants := []models.TenantID{"A", "B", "C", "D"}
	for _, tenant := range tenants {
		wg.Add(1)
		go func(tenant models.TenantID) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Publish(event(tenant, i))
			}
		}(tenant)
	}
	wg.Wait()

	last := map[models.TenantID]int64{}
	for _, evt := range drain(sub) {
		seq := evt.Timestamp.Unix()
		if prev, ok := last[evt.TenantID]; ok {
			s.Greater(seq, prev, "events for %s out of order", evt.TenantID)
		}
		last[evt.TenantID] = seq
	}
	s.Len(last, len(tenants))
}
