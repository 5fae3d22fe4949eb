package chat

import (
	"sort"
	"sync"
)

// Registry maps a user id to its single live transport.
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]Transport
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]Transport)}
}

// Add registers t for userID unless the user already has a transport. The first connection wins.
func (r *Registry) Add(userID int64, t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[userID]; ok {
		return false
	}
	r.conns[userID] = t
	return true
}

func (r *Registry) Remove(userID int64) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.conns[userID]
	if ok {
		delete(r.conns, userID)
	}
	return t, ok
}

// RemoveIf removes the entry only while it still points at t.
func (r *Registry) RemoveIf(userID int64, t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[userID]; ok && cur == t {
		delete(r.conns, userID)
		return true
	}
	return false
}

func (r *Registry) Lookup(userID int64) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.conns[userID]
	return t, ok
}

// Others lists registered users except exclude, in ascending order.
func (r *Registry) Others(exclude int64) []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.conns))
	for id := range r.conns {
		if id != exclude {
			out = append(out, id)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
