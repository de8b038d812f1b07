package risk

import (
	"context"
	"sync"
)

// MemoryWeightsStore holds the weight configuration in memory.
type MemoryWeightsStore struct {
	mu      sync.RWMutex
	weights Weights
}

var _ WeightsStore = (*MemoryWeightsStore)(nil)

func NewMemoryWeightsStore() *MemoryWeightsStore {
	return &MemoryWeightsStore{weights: DefaultWeights()}
}

func (m *MemoryWeightsStore) GetWeights(_ context.Context) (Weights, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weights, nil
}

func (m *MemoryWeightsStore) SetWeights(_ context.Context, w Weights) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weights = w
	return nil
}
