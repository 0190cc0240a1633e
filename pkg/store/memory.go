package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps datapoints in a map. Used in tests and for running
// without redis.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]Value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]Value),
	}
}

func (m *MemoryStore) Get(ctx context.Context, key string) (Value, bool, error) {
	select {
	case <-ctx.Done():
		return Value{}, false, ctx.Err()
	default:
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	v, found := m.values[key]
	return v, found, nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value float64, ack bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	m.mu.Lock()
	m.values[key] = Value{Value: value, Time: time.Now()}
	m.mu.Unlock()
	return nil
}

// Len is useful in tests.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
