package state

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryData struct {
	mu   sync.RWMutex
	vals map[string][]byte
	hub  *hub
}

// MemoryStore keeps values in process memory. Sibling stores share data and
// notifications the way browser tabs share localStorage.
type MemoryStore struct {
	data   *memoryData
	origin string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   &memoryData{vals: map[string][]byte{}, hub: newHub()},
		origin: uuid.NewString(),
	}
}

// Sibling returns another store over the same data with its own origin.
func (m *MemoryStore) Sibling() *MemoryStore {
	return &MemoryStore{data: m.data, origin: uuid.NewString()}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.data.mu.RLock()
	defer m.data.mu.RUnlock()
	v, ok := m.data.vals[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	v := append([]byte(nil), value...)
	m.data.mu.Lock()
	m.data.vals[key] = v
	m.data.mu.Unlock()
	m.data.hub.publish(Change{Key: key, Value: v, Origin: m.origin})
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.data.mu.Lock()
	delete(m.data.vals, key)
	m.data.mu.Unlock()
	m.data.hub.publish(Change{Key: key, Removed: true, Origin: m.origin})
	return nil
}

func (m *MemoryStore) Watch(key string) (<-chan Change, func()) { return m.data.hub.watch(key) }

func (m *MemoryStore) Origin() string { return m.origin }

func (m *MemoryStore) Close() error { return nil }
