package repository

import (
	"context"
	"sync"

	"storefront/internal/model"
)

// MemoryStorage keeps everything in process. Used for single-instance
// deployments and tests.
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
	hub  *watchHub
}

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]map[string][]byte),
		hub:  newWatchHub(),
	}
}

// Get returns a copy of the stored value
func (m *MemoryStorage) Get(_ context.Context, namespace, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[namespace][key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

// Set stores a copy of value
func (m *MemoryStorage) Set(_ context.Context, namespace, key string, value []byte, origin string) error {
	m.mu.Lock()
	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}
	ns[key] = append([]byte(nil), value...)
	m.mu.Unlock()

	m.hub.publish(model.StoreChange{Namespace: namespace, Key: key, Origin: origin})
	return nil
}

// Delete removes the key
func (m *MemoryStorage) Delete(_ context.Context, namespace, key, origin string) error {
	m.mu.Lock()
	delete(m.data[namespace], key)
	m.mu.Unlock()

	m.hub.publish(model.StoreChange{Namespace: namespace, Key: key, Origin: origin})
	return nil
}

// Watch registers a watcher that lives until ctx is done
func (m *MemoryStorage) Watch(ctx context.Context, namespace string) (<-chan model.StoreChange, error) {
	return m.hub.add(ctx, namespace), nil
}

// Close is a no-op for memory storage
func (m *MemoryStorage) Close() error {
	return nil
}
