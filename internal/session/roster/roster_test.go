package roster

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"chatpulse/internal/sentinel"
	"chatpulse/internal/session/models"
)

type store interface {
	Save(ctx context.Context, e Entry) error
	Delete(ctx context.Context, tenantID models.TenantID) error
	List(ctx context.Context) ([]Entry, error)
}

// StoreSuite runs the same contract against every store implementation.
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) store
	store    store
	ctx      context.Context
	base     time.Time
}

func TestInMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(*testing.T) store { return NewInMemory() }})
}

func TestRedisStore(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) store {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedis(client, "")
	}})
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
	s.ctx = context.Background()
	s.base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func (s *StoreSuite) TestSaveAndListOrderedByCreation() {
	s.Require().NoError(s.store.Save(s.ctx, Entry{TenantID: "b", CreatedAt: s.base.Add(time.Minute)}))
	s.Require().NoError(s.store.Save(s.ctx, Entry{TenantID: "a", DisplayInfo: models.DisplayInfo{Name: "Alpha"}, CreatedAt: s.base}))

	entries, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(models.TenantID("a"), entries[0].TenantID)
	s.Equal("Alpha", entries[0].DisplayInfo.Name)
	s.True(entries[0].CreatedAt.Equal(s.base))
	s.Equal(models.TenantID("b"), entries[1].TenantID)
}

func (s *StoreSuite) TestSaveReplacesDisplayInfo() {
	s.Require().NoError(s.store.Save(s.ctx, Entry{TenantID: "a", DisplayInfo: models.DisplayInfo{Name: "Old"}, CreatedAt: s.base}))
	s.Require().NoError(s.store.Save(s.ctx, Entry{TenantID: "a", DisplayInfo: models.DisplayInfo{Name: "New", AccountID: "acct"}, CreatedAt: s.base}))

	entries, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("New", entries[0].DisplayInfo.Name)
	s.Equal("acct", entries[0].DisplayInfo.AccountID)
}

func (s *StoreSuite) TestDelete() {
	s.Require().NoError(s.store.Save(s.ctx, Entry{TenantID: "a", CreatedAt: s.base}))

	s.Require().NoError(s.store.Delete(s.ctx, "a"))
	s.ErrorIs(s.store.Delete(s.ctx, "a"), sentinel.ErrNotFound)

	entries, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(entries)
}

func TestRedisStoreKeepsOriginalCreatedAt(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	st := NewRedis(client, "test:roster")
	ctx := context.Background()
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := st.Save(ctx, Entry{TenantID: "a", CreatedAt: first}); err != nil {
		t.Fatal(err)
	}
	if err := st.Save(ctx, Entry{TenantID: "a", CreatedAt: first.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	entries, err := st.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !entries[0].CreatedAt.Equal(first) {
		t.Fatalf("expected created_at %v to be preserved, got %+v", first, entries)
	}
	if !mr.Exists("test:roster") {
		t.Fatal("expected custom key to be used")
	}
}
