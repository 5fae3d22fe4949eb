package chat

import (
	"context"
	"encoding/json"
	"sort"
)

// BacklogEntry is one buffered event as shown by the backlog endpoint and CLI.
type BacklogEntry struct {
	MessageID string          `json:"message_id"`
	Kind      Kind            `json:"kind"`
	Event     json.RawMessage `json:"event"`
}

// Backlog lists the offline records of userID ordered by message id, which for UUIDv7 ids is
// creation order.
func Backlog(ctx context.Context, store OfflineStore, userID int64) ([]BacklogEntry, error) {
	records, err := store.RetrieveAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	list := make([]BacklogEntry, 0, len(records))
	for id, payload := range records {
		entry := BacklogEntry{MessageID: id, Kind: kindOf(payload)}
		if json.Valid(payload) {
			entry.Event = json.RawMessage(payload)
		} else {
			raw, _ := json.Marshal(string(payload))
			entry.Event = raw
		}
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].MessageID < list[j].MessageID })
	return list, nil
}

func (h *Hub) Backlog(ctx context.Context, userID int64) ([]BacklogEntry, error) {
	return Backlog(ctx, h.offline, userID)
}
