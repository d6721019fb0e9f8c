package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements the StatusStore interface using in-memory storage
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]BreakerStatus
}

// NewMemoryStore creates a new in-memory status store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses: make(map[string]BreakerStatus),
	}
}

func (ms *MemoryStore) PutBreakerStatus(_ context.Context, status BreakerStatus) error {
	if status.Service == "" {
		return fmt.Errorf("breaker status without service name")
	}

	ms.mu.Lock()
	ms.statuses[statusField(status.Instance, status.Service)] = status
	ms.mu.Unlock()

	return nil
}

func (ms *MemoryStore) BreakerStatuses(_ context.Context) ([]BreakerStatus, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]BreakerStatus, 0, len(ms.statuses))
	for _, s := range ms.statuses {
		out = append(out, s)
	}
	sortStatuses(out)
	return out, nil
}

func (ms *MemoryStore) Close() error {
	return nil
}

func sortStatuses(statuses []BreakerStatus) {
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Instance != statuses[j].Instance {
			return statuses[i].Instance < statuses[j].Instance
		}
		return statuses[i].Service < statuses[j].Service
	})
}
