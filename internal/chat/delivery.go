package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pelusa-v/pelusa-relay/internal/metrics"
)

const offlineStoreTimeout = 5 * time.Second

// Policy controls retries for ack-eligible kinds. Kinds missing from AckKinds are sent once.
type Policy struct {
	Retries       int
	Interval      time.Duration
	BackoffFactor float64
	MaxInterval   time.Duration
	AckKinds      map[Kind]bool
}

func DefaultPolicy() Policy {
	return Policy{
		Retries:       3,
		Interval:      2 * time.Second,
		BackoffFactor: 1,
		MaxInterval:   30 * time.Second,
		AckKinds: map[Kind]bool{
			KindChat: true, KindMsgUpdate: true, KindTyping: true, KindBlur: true, KindStatus: true,
		},
	}
}

func (p Policy) next(d time.Duration) time.Duration {
	if p.BackoffFactor <= 1 {
		return d
	}
	n := time.Duration(float64(d) * p.BackoffFactor)
	if p.MaxInterval > 0 && n > p.MaxInterval {
		n = p.MaxInterval
	}
	return n
}

type pendingDelivery struct {
	messageID  string
	receiverID int64
	kind       Kind
	payload    []byte
	retries    int
	interval   time.Duration
}

// Queue owns the pending-delivery table and the retry tasks draining it.
type Queue struct {
	registry *Registry
	offline  OfflineStore
	policy   Policy
	logger   *slog.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu      sync.Mutex
	pending map[string]*pendingDelivery
	closed  bool
}

func NewQueue(registry *Registry, offline OfflineStore, policy Policy, logger *slog.Logger, m *metrics.Metrics) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &Queue{
		registry: registry,
		offline:  offline,
		policy:   policy,
		logger:   logger.With("component", "delivery"),
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		group:    group,
		pending:  make(map[string]*pendingDelivery),
	}
}

// Send routes ev with the configured policy for its kind.
func (q *Queue) Send(receiverID int64, ev Event) {
	if !q.policy.AckKinds[ev.Kind] {
		q.sendOnce(receiverID, ev)
		return
	}
	q.Enqueue(receiverID, ev, q.policy.Retries, q.policy.Interval)
}

// Enqueue registers a pending delivery and, when the receiver is online, starts its retry task.
// An offline receiver gets content-bearing events written to the offline store before Enqueue
// returns; anything else is dropped.
func (q *Queue) Enqueue(receiverID int64, ev Event, retries int, interval time.Duration) {
	if retries < 1 {
		retries = 1
	}
	p := &pendingDelivery{
		messageID:  ev.MessageID,
		receiverID: receiverID,
		kind:       ev.Kind,
		payload:    ev.Payload,
		retries:    retries,
		interval:   interval,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.settle(p, "queue closed")
		return
	}
	if _, dup := q.pending[p.messageID]; dup {
		q.mu.Unlock()
		q.logger.Warn("message id already pending, ignoring resubmit", "message_id", p.messageID, "receiver_id", receiverID)
		return
	}
	q.pending[p.messageID] = p
	if _, online := q.registry.Lookup(receiverID); !online {
		delete(q.pending, p.messageID)
		q.mu.Unlock()
		q.settle(p, "receiver offline")
		return
	}
	q.group.Go(func() error {
		q.run(p)
		return nil
	})
	q.mu.Unlock()
}

// Acknowledge clears the pending entry for messageID if it is addressed to receiverID. Unknown ids
// and ids pending for another receiver are ignored.
func (q *Queue) Acknowledge(receiverID int64, messageID string) bool {
	q.mu.Lock()
	p, ok := q.pending[messageID]
	ok = ok && p.receiverID == receiverID
	if ok {
		delete(q.pending, messageID)
	}
	q.mu.Unlock()
	if ok {
		q.metrics.DeliveryAcked()
		q.logger.Debug("delivery acknowledged", "message_id", messageID)
	}
	return ok
}

func (q *Queue) Pending(messageID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[messageID]
	return ok
}

func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Shutdown stops accepting work, wakes every retry task and waits for them. Tasks interrupted
// this way hand content-bearing events to the offline store.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()

	done := make(chan error, 1)
	go func() { done <- q.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run(p *pendingDelivery) {
	interval := p.interval
	for attempt := 1; attempt <= p.retries; attempt++ {
		t, ok := q.registry.Lookup(p.receiverID)
		if !ok {
			q.fail(p, "receiver offline")
			return
		}
		if err := t.Send(p.payload); err != nil {
			q.logger.Warn("transport send failed",
				"message_id", p.messageID, "receiver_id", p.receiverID, "kind", p.kind,
				"attempt", attempt, "error", err.Error())
			q.fail(p, "transport error")
			return
		}
		q.metrics.DeliverySent(string(p.kind))

		if !q.sleep(interval) {
			q.fail(p, "shutdown")
			return
		}
		if !q.Pending(p.messageID) {
			return
		}
		interval = q.policy.next(interval)
	}
	q.fail(p, "retries exhausted")
}

func (q *Queue) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-q.ctx.Done():
		return false
	}
}

// fail settles p only if it is still pending; an ack that won the race means it was delivered.
func (q *Queue) fail(p *pendingDelivery, reason string) {
	q.mu.Lock()
	_, ok := q.pending[p.messageID]
	delete(q.pending, p.messageID)
	q.mu.Unlock()
	if ok {
		q.settle(p, reason)
	}
}

// settle persists content-bearing events and drops the rest.
func (q *Queue) settle(p *pendingDelivery, reason string) {
	attrs := []any{
		"message_id", p.messageID, "receiver_id", p.receiverID, "kind", p.kind, "reason", reason,
	}
	if !p.kind.ContentBearing() {
		q.metrics.DeliveryDropped(string(p.kind))
		q.logger.Debug("ephemeral event dropped", attrs...)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(q.ctx), offlineStoreTimeout)
	defer cancel()
	if err := q.offline.Store(ctx, p.receiverID, p.messageID, p.payload); err != nil {
		q.metrics.OfflineStoreError("store")
		q.logger.Error("offline store failed, message lost", append(attrs, "error", err.Error())...)
		return
	}
	q.metrics.DeliveryOffline(string(p.kind))
	q.logger.Info("event stored offline", attrs...)
}

func (q *Queue) sendOnce(receiverID int64, ev Event) {
	p := &pendingDelivery{messageID: ev.MessageID, receiverID: receiverID, kind: ev.Kind, payload: ev.Payload}
	t, ok := q.registry.Lookup(receiverID)
	if !ok {
		q.settle(p, "receiver offline")
		return
	}
	if err := t.Send(ev.Payload); err != nil {
		q.logger.Warn("transport send failed", "message_id", ev.MessageID, "receiver_id", receiverID, "error", err.Error())
		q.settle(p, "transport error")
		return
	}
	q.metrics.DeliverySent(string(ev.Kind))
}
