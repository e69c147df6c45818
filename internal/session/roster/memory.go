package roster

import (
	"context"
	"sort"
	"sync"

	"chatpulse/internal/sentinel"
	"chatpulse/internal/session/models"
)

// InMemory keeps the roster in process memory. It is the default when no
// database or Redis is configured, and it does not survive a restart.
type InMemory struct {
	mu      sync.RWMutex
	entries map[models.TenantID]Entry
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[models.TenantID]Entry)}
}

// Save inserts or replaces the entry for e.TenantID, keeping the original
// creation time.
func (s *InMemory) Save(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.entries[e.TenantID]; ok {
		e.CreatedAt = prev.CreatedAt
	}
	s.entries[e.TenantID] = e
	return nil
}

func (s *InMemory) Delete(_ context.Context, tenantID models.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[tenantID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.entries, tenantID)
	return nil
}

// List returns every entry ordered by creation time.
func (s *InMemory) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sortEntries(out)
	return out, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].TenantID < entries[j].TenantID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
