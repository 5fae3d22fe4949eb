package offline

import (
	"context"
	"sync"
)

// Memory is a process-local offline store. It does not survive restarts; use it for tests and
// single-node development.
type Memory struct {
	mu      sync.RWMutex
	records map[int64]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{records: make(map[int64]map[string][]byte)}
}

func (m *Memory) Store(_ context.Context, receiverID int64, messageID string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.records[receiverID]
	if !ok {
		byID = make(map[string][]byte)
		m.records[receiverID] = byID
	}
	byID[messageID] = append([]byte(nil), payload...)
	return nil
}

func (m *Memory) RetrieveAll(_ context.Context, receiverID int64) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.records[receiverID]))
	for id, payload := range m.records[receiverID] {
		out[id] = append([]byte(nil), payload...)
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, receiverID int64, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.records[receiverID]
	if !ok {
		return nil
	}
	delete(byID, messageID)
	if len(byID) == 0 {
		delete(m.records, receiverID)
	}
	return nil
}

func (m *Memory) Close() error { return nil }
