package signal

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/riskpulse/riskpulse/internal/pagination"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	signals map[string]*Signal
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signals: make(map[string]*Signal)}
}

func (m *MemoryStore) Create(_ context.Context, sig *Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *sig
	m.signals[sig.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.signals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sig
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, q ListQuery) ([]*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var cur *pagination.Cursor
	if q.Cursor != "" {
		c, err := pagination.Decode(q.Cursor)
		if err != nil {
			return nil, err
		}
		cur = c
	}

	out := make([]*Signal, 0, len(m.signals))
	for _, sig := range m.signals {
		if q.Source != "" && string(sig.Source) != q.Source {
			continue
		}
		if cur != nil {
			// Descending order: skip anything at or after the cursor.
			if sig.Timestamp.After(cur.Timestamp) {
				continue
			}
			if sig.Timestamp.Equal(cur.Timestamp) && sig.ID >= cur.ID {
				continue
			}
		}
		cp := *sig
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit+1 {
		out = out[:q.Limit+1]
	}
	return out, nil
}

func (m *MemoryStore) ListWindow(_ context.Context, from, to time.Time, limit int) ([]*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Signal, 0)
	for _, sig := range m.signals {
		if sig.Timestamp.Before(from) || !sig.Timestamp.Before(to) {
			continue
		}
		cp := *sig
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		// Keep the most recent entries.
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) ListUnscored(_ context.Context, limit int) ([]*Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Signal, 0)
	for _, sig := range m.signals {
		if sig.Scored() {
			continue
		}
		cp := *sig
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) CountBySource(_ context.Context, from, to time.Time) (map[Source]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[Source]int)
	for _, sig := range m.signals {
		if sig.Timestamp.Before(from) || !sig.Timestamp.Before(to) {
			continue
		}
		counts[sig.Source]++
	}
	return counts, nil
}

func (m *MemoryStore) UpdateRisk(_ context.Context, id string, score float64, tier string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sig, ok := m.signals[id]
	if !ok {
		return ErrNotFound
	}
	sig.RiskScore = &score
	sig.RiskTier = tier
	return nil
}

func (m *MemoryStore) ListMetricSamples(_ context.Context, name string, since time.Time, limit int) ([]TimedSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TimedSample, 0)
	for _, sig := range m.signals {
		if sig.Metric == nil || sig.Metric.Name != name {
			continue
		}
		if sig.Timestamp.Before(since) {
			continue
		}
		out = append(out, TimedSample{Timestamp: sig.Timestamp, Value: sig.Metric.Value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStore) ListMetricNames(_ context.Context, since time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, sig := range m.signals {
		if sig.Metric == nil || sig.Metric.Name == "" {
			continue
		}
		if sig.Timestamp.Before(since) {
			continue
		}
		seen[sig.Metric.Name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return strings.Compare(names[i], names[j]) < 0 })
	return names, nil
}
