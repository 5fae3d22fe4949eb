package chat

// BroadcastPresence tells every other connected user that userID changed status.
func (h *Hub) BroadcastPresence(userID int64, status Status) {
	for _, other := range h.registry.Others(userID) {
		id := h.ids.NextID()
		ev, err := newEvent(KindStatus, id, statusOut{
			Type:      KindStatus,
			UserID:    userID,
			Status:    status,
			MessageID: id,
		})
		if err != nil {
			h.logger.Error("encode status event", "user_id", userID, "error", err.Error())
			return
		}
		h.queue.Send(other, ev)
	}
}
