package session

import (
	"context"
	"sort"
	"sync"
)

type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, sessionID string) ([]byte, bool, error) {
	if err := checkID(sessionID); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[sessionID]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), blob...), true, nil
}

func (m *Memory) Put(_ context.Context, sessionID string, blob []byte) error {
	if err := checkID(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	m.blobs[sessionID] = append([]byte(nil), blob...)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.blobs, sessionID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.blobs))
	for id := range m.blobs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}
