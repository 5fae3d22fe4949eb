package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	closed bool
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		f.frames = append(f.frames, nil)
		return f.err
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// decoded returns every frame as a map, skipping failed sends.
func (f *fakeTransport) decoded(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, raw := range f.frames {
		if raw == nil {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("frame is not json: %s", raw)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range f.decoded(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

type fakeStore struct {
	mu        sync.Mutex
	statuses  map[int64]Status
	statusErr error
	chats     []ChatRecord
	chatErr   error
}

func newFakeStore(users ...int64) *fakeStore {
	s := &fakeStore{statuses: make(map[int64]Status)}
	for _, id := range users {
		s.statuses[id] = StatusOffline
	}
	return s
}

func (s *fakeStore) MarkStatus(_ context.Context, userID int64, status Status) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return 0, false, s.statusErr
	}
	if _, ok := s.statuses[userID]; !ok {
		return 0, false, nil
	}
	s.statuses[userID] = status
	return userID, true, nil
}

func (s *fakeStore) InsertChat(_ context.Context, rec ChatRecord) (ChatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatErr != nil {
		return ChatRecord{}, s.chatErr
	}
	rec.ID = int64(len(s.chats) + 1)
	s.chats = append(s.chats, rec)
	return rec, nil
}

func (s *fakeStore) status(userID int64) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[userID]
}

func (s *fakeStore) setStatusErr(err error) {
	s.mu.Lock()
	s.statusErr = err
	s.mu.Unlock()
}

type fakeOffline struct {
	mu        sync.Mutex
	records   map[int64]map[string][]byte
	stores    int
	deletes   int
	storeErr  error
	deleteErr error
}

func newFakeOffline() *fakeOffline {
	return &fakeOffline{records: make(map[int64]map[string][]byte)}
}

func (o *fakeOffline) Store(_ context.Context, receiverID int64, messageID string, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stores++
	if o.storeErr != nil {
		return o.storeErr
	}
	if o.records[receiverID] == nil {
		o.records[receiverID] = make(map[string][]byte)
	}
	o.records[receiverID][messageID] = append([]byte(nil), payload...)
	return nil
}

func (o *fakeOffline) RetrieveAll(_ context.Context, receiverID int64) (map[string][]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string][]byte)
	for id, p := range o.records[receiverID] {
		out[id] = p
	}
	return out, nil
}

func (o *fakeOffline) Delete(_ context.Context, receiverID int64, messageID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletes++
	if o.deleteErr != nil {
		return o.deleteErr
	}
	delete(o.records[receiverID], messageID)
	return nil
}

func (o *fakeOffline) get(receiverID int64, messageID string) ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.records[receiverID][messageID]
	return p, ok
}

func (o *fakeOffline) size(receiverID int64) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records[receiverID])
}

func (o *fakeOffline) counts() (stores, deletes int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stores, o.deletes
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextID() string {
	return fmt.Sprintf("id-%04d", s.n.Add(1))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPolicy(retries int, interval time.Duration) Policy {
	p := DefaultPolicy()
	p.Retries = retries
	p.Interval = interval
	return p
}

type testEnv struct {
	hub     *Hub
	store   *fakeStore
	offline *fakeOffline
}

func newTestEnv(t *testing.T, policy Policy, users ...int64) *testEnv {
	t.Helper()
	env := &testEnv{store: newFakeStore(users...), offline: newFakeOffline()}
	env.hub = NewHub(Deps{
		Store:   env.store,
		Offline: env.offline,
		IDs:     &seqIDs{},
		Logger:  discardLogger(),
		Policy:  policy,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = env.hub.Shutdown(ctx)
	})
	return env
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")
