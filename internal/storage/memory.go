package storage

import (
	"context"
	"sync"

	"github.com/pelusa-v/pelusa-relay/internal/chat"
)

// Memory keeps users and chats in process. With autoRegister, MarkStatus creates unknown users
// instead of reporting them missing.
type Memory struct {
	mu           sync.RWMutex
	autoRegister bool
	statuses     map[int64]chat.Status
	chats        []chat.ChatRecord
	byUUID       map[string]int
}

func NewMemory(autoRegister bool) *Memory {
	return &Memory{
		autoRegister: autoRegister,
		statuses:     make(map[int64]chat.Status),
		byUUID:       make(map[string]int),
	}
}

func (m *Memory) AddUser(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.statuses[userID]; !ok {
		m.statuses[userID] = chat.StatusOffline
	}
}

func (m *Memory) Status(userID int64) (chat.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[userID]
	return s, ok
}

func (m *Memory) MarkStatus(_ context.Context, userID int64, status chat.Status) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.statuses[userID]; !ok && !m.autoRegister {
		return 0, false, nil
	}
	m.statuses[userID] = status
	return userID, true, nil
}

func (m *Memory) InsertChat(_ context.Context, rec chat.ChatRecord) (chat.ChatRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byUUID[rec.UUID]; ok {
		return m.chats[i], nil
	}
	rec.ID = int64(len(m.chats) + 1)
	m.byUUID[rec.UUID] = len(m.chats)
	m.chats = append(m.chats, rec)
	return rec, nil
}

// Chats returns the chats sent or received by userID in insertion order.
func (m *Memory) Chats(userID int64) []chat.ChatRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]chat.ChatRecord, 0)
	for _, c := range m.chats {
		if c.SenderID == userID || c.ReceiverID == userID {
			out = append(out, c)
		}
	}
	return out
}

var _ chat.Persistence = (*Memory)(nil)
