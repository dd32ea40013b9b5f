package repo

import (
	"context"
	"slices"
	"sync"

	errx "github.com/gasdesk/agent-server/internal/core/error"
)

// MemoryBackend keeps records in process. Used by the chat command and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[Kind]map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[Kind]map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, kind Kind, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.records[kind][id]
	if !ok {
		return nil, errx.ErrNotFound
	}
	return slices.Clone(body), nil
}

func (m *MemoryBackend) Put(_ context.Context, kind Kind, id string, body []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[kind] == nil {
		m.records[kind] = make(map[string][]byte)
	}
	m.records[kind][id] = slices.Clone(body)
	return nil
}

func (m *MemoryBackend) List(_ context.Context, kind Kind) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records[kind]))
	for id := range m.records[kind] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
