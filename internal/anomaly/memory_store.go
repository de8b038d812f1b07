package anomaly

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store bounded to the most recent events.
type MemoryStore struct {
	mu        sync.RWMutex
	events    []*Event
	maxEvents int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{maxEvents: 1000}
}

func (m *MemoryStore) Create(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *event
	m.events = append(m.events, &cp)
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
	return nil
}

func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Event, 0, len(m.events))
	for _, e := range m.events {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.After(out[j].DetectedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListSince(ctx context.Context, since time.Time) ([]*Event, error) {
	all, err := m.ListRecent(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*Event, 0, len(all))
	for _, e := range all {
		if e.DetectedAt.Before(since) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
