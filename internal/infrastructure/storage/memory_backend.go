package storage

import (
	"context"
	"sync"
)

// MemoryBackend keeps collection documents in memory. Data is lost on
// restart. Safe for concurrent use.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

func (m *MemoryBackend) Prepare(context.Context) error { return nil }

func (m *MemoryBackend) Init(_ context.Context, collection string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[collection]; ok {
		return false, nil
	}
	m.docs[collection] = []byte("[]")
	return true, nil
}

func (m *MemoryBackend) Load(_ context.Context, collection string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[collection]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), doc...), nil
}

func (m *MemoryBackend) Save(_ context.Context, collection string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[collection] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
