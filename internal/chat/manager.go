package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pelusa-v/pelusa-relay/internal/metrics"
	"github.com/pelusa-v/pelusa-relay/internal/ratelimiter"
)

// Deps are the collaborators a Hub is built from. Store and Offline are required.
type Deps struct {
	Store   Persistence
	Offline OfflineStore
	Media   MediaStore
	IDs     IDGenerator
	Limiter *ratelimiter.MapLimiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Policy  Policy
}

// Hub ties the connection registry to the delivery queue. One Hub is built per server and torn
// down with Shutdown.
type Hub struct {
	registry *Registry
	queue    *Queue
	store    Persistence
	offline  OfflineStore
	media    MediaStore
	ids      IDGenerator
	limiter  *ratelimiter.MapLimiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewHub(d Deps) *Hub {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ids := d.IDs
	if ids == nil {
		ids = UUIDGenerator{}
	}
	policy := d.Policy
	if policy.AckKinds == nil {
		policy = DefaultPolicy()
	}
	registry := NewRegistry()
	return &Hub{
		registry: registry,
		queue:    NewQueue(registry, d.Offline, policy, logger, d.Metrics),
		store:    d.Store,
		offline:  d.Offline,
		media:    d.Media,
		ids:      ids,
		limiter:  d.Limiter,
		metrics:  d.Metrics,
		logger:   logger.With("component", "hub"),
	}
}

func (h *Hub) Queue() *Queue { return h.queue }

func (h *Hub) Lookup(userID int64) (Transport, bool) {
	return h.registry.Lookup(userID)
}

// ListClients returns the ids of connected users, without exclude.
func (h *Hub) ListClients(exclude int64) []int64 {
	return h.registry.Others(exclude)
}

type closer interface {
	Closed() bool
}

// Connect registers t for userID, marks the user online, announces it and replays the offline
// backlog. It returns false when the user is already connected or the status update fails; in the
// latter case the registration is rolled back and nothing is broadcast.
func (h *Hub) Connect(ctx context.Context, userID int64, t Transport) bool {
	if !h.registry.Add(userID, t) {
		if !h.evictStale(userID) || !h.registry.Add(userID, t) {
			h.logger.Warn("user already connected", "operation", "connect", "user_id", userID)
			return false
		}
	}
	if err := h.markStatus(ctx, userID, StatusOnline); err != nil {
		h.registry.RemoveIf(userID, t)
		h.logger.Error("failed to connect user", "operation", "connect", "user_id", userID, "error", err.Error())
		return false
	}
	h.metrics.ConnectionOpened()
	h.logger.Info("user connected", "operation", "connect", "user_id", userID)

	h.BroadcastPresence(userID, StatusOnline)
	h.Replay(ctx, userID)
	return true
}

// evictStale drops a registered transport whose socket is already closed. Such an entry belongs
// to a session whose disconnect could not be persisted.
func (h *Hub) evictStale(userID int64) bool {
	cur, ok := h.registry.Lookup(userID)
	if !ok {
		return true
	}
	c, ok := cur.(closer)
	if !ok || !c.Closed() {
		return false
	}
	if h.registry.RemoveIf(userID, cur) {
		h.metrics.ConnectionClosed()
		h.logger.Warn("evicted stale connection", "operation", "connect", "user_id", userID)
	}
	return true
}

// Disconnect removes whatever transport userID has registered.
func (h *Hub) Disconnect(ctx context.Context, userID int64) bool {
	t, ok := h.registry.Remove(userID)
	if !ok {
		h.logger.Warn("user is not connected", "operation", "disconnect", "user_id", userID)
		return false
	}
	return h.finishDisconnect(ctx, userID, t)
}

// DisconnectClient is Disconnect for a specific transport; it is a no-op if userID has since been
// registered with another one.
func (h *Hub) DisconnectClient(ctx context.Context, userID int64, t Transport) bool {
	if !h.registry.RemoveIf(userID, t) {
		return false
	}
	return h.finishDisconnect(ctx, userID, t)
}

func (h *Hub) finishDisconnect(ctx context.Context, userID int64, t Transport) bool {
	if err := h.markStatus(ctx, userID, StatusOffline); err != nil {
		if !h.registry.Add(userID, t) {
			h.logger.Warn("could not restore connection after failed disconnect", "user_id", userID)
		}
		h.logger.Error("failed to disconnect user", "operation", "disconnect", "user_id", userID, "error", err.Error())
		return false
	}
	h.limiter.Forget(userID)
	h.metrics.ConnectionClosed()
	h.logger.Info("user disconnected", "operation", "disconnect", "user_id", userID)

	h.BroadcastPresence(userID, StatusOffline)
	return true
}

func (h *Hub) markStatus(ctx context.Context, userID int64, status Status) error {
	_, ok, err := h.store.MarkStatus(ctx, userID, status)
	if err != nil {
		return fmt.Errorf("mark user %d %s: %w", userID, status, err)
	}
	if !ok {
		return fmt.Errorf("mark user %d %s: %w", userID, status, ErrUnknownUser)
	}
	return nil
}

// Shutdown drains the delivery queue.
func (h *Hub) Shutdown(ctx context.Context) error {
	return h.queue.Shutdown(ctx)
}
