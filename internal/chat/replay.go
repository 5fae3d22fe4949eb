package chat

import "context"

// Replay re-submits userID's offline backlog under the original message ids and returns how many
// records were re-submitted. Each record is deleted before it is queued so an id never sits in the
// store and the pending table at once; if the user drops again the queue writes it back. A record
// that cannot be deleted stays buffered until the next connect.
func (h *Hub) Replay(ctx context.Context, userID int64) int {
	records, err := h.offline.RetrieveAll(ctx, userID)
	if err != nil {
		h.metrics.OfflineStoreError("retrieve")
		h.logger.Error("failed to load offline backlog", "operation", "replay", "user_id", userID, "error", err.Error())
		return 0
	}

	n := 0
	for id, payload := range records {
		if err := h.offline.Delete(ctx, userID, id); err != nil {
			h.metrics.OfflineStoreError("delete")
			h.logger.Error("failed to delete offline record", "operation", "replay",
				"user_id", userID, "message_id", id, "error", err.Error())
			continue
		}
		h.queue.Send(userID, Event{MessageID: id, Kind: kindOf(payload), Payload: payload})
		n++
	}
	if n > 0 {
		h.metrics.OfflineReplayed(n)
		h.logger.Info("offline backlog replayed", "operation", "replay", "user_id", userID, "count", n)
	}
	return n
}
