package storage

import (
	"context"
	"sync"
)

var _ Storage = (*Memory)(nil)

// Memory is an in-process store. Default backend for tests and local runs.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]string)}
}

func (m *Memory) GetContent(_ context.Context, docID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.docs[docID]
	if !ok {
		return "", ErrNotFound
	}
	return content, nil
}

func (m *Memory) SetContent(_ context.Context, docID string, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[docID] = content
	return nil
}

func (m *Memory) Close() error { return nil }
