package incident

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory incident and note store.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents map[string]*Incident
	notes     map[string][]*Note
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ NoteStore = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		incidents: make(map[string]*Incident),
		notes:     make(map[string][]*Note),
	}
}

func copyIncident(inc *Incident) *Incident {
	cp := *inc
	cp.RelatedSignalIDs = append([]string(nil), inc.RelatedSignalIDs...)
	cp.History = append([]TransitionRecord(nil), inc.History...)
	return &cp
}

func (m *MemoryStore) Create(_ context.Context, inc *Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incidents[inc.ID] = copyIncident(inc)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.incidents[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyIncident(inc), nil
}

func (m *MemoryStore) Update(_ context.Context, inc *Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.incidents[inc.ID]; !ok {
		return ErrNotFound
	}
	m.incidents[inc.ID] = copyIncident(inc)
	return nil
}

func (m *MemoryStore) List(_ context.Context, q ListQuery) ([]*Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		if q.Status != "" && string(inc.Status) != q.Status {
			continue
		}
		if q.Severity != "" && string(inc.Severity) != q.Severity {
			continue
		}
		out = append(out, copyIncident(inc))
	}
	sortIncidents(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListOpen(_ context.Context) ([]*Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Incident, 0)
	for _, inc := range m.incidents {
		if inc.Open() {
			out = append(out, copyIncident(inc))
		}
	}
	sortIncidents(out)
	return out, nil
}

func sortIncidents(incidents []*Incident) {
	sort.Slice(incidents, func(i, j int) bool {
		if !incidents[i].StartTime.Equal(incidents[j].StartTime) {
			return incidents[i].StartTime.After(incidents[j].StartTime)
		}
		return incidents[i].ID > incidents[j].ID
	})
}

func (m *MemoryStore) CreateNote(_ context.Context, note *Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *note
	m.notes[note.IncidentID] = append(m.notes[note.IncidentID], &cp)
	return nil
}

func (m *MemoryStore) ListNotes(_ context.Context, incidentID string) ([]*Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	notes := m.notes[incidentID]
	out := make([]*Note, 0, len(notes))
	for _, n := range notes {
		cp := *n
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
