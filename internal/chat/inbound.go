package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// HandleFrame dispatches one inbound frame from c. A returned error means the frame was dropped;
// the connection stays usable.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, data []byte) error {
	var header frameHeader
	if err := json.Unmarshal(data, &header); err != nil {
		h.metrics.InboundRejected("malformed")
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if !h.limiter.Allow(c.UserID, time.Now()) {
		h.metrics.InboundRejected("rate_limited")
		return ErrRateLimited
	}

	var err error
	switch header.Type {
	case string(KindChat):
		err = h.handleChat(ctx, c, data)
	case string(KindTyping), string(KindBlur):
		err = h.handleTyping(c, Kind(header.Type), data)
	case "ping":
		err = h.handlePing(c, data)
	case "ack":
		err = h.handleAck(c, data)
	default:
		h.metrics.InboundRejected("unknown_type")
		return fmt.Errorf("%w: %q", ErrUnknownFrame, header.Type)
	}
	h.metrics.InboundFrame(header.Type)
	if err != nil {
		h.metrics.InboundRejected("invalid")
	}
	return err
}

func decodeFrame(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformedFrame, field)
}

func (h *Hub) handleChat(ctx context.Context, c *Client, data []byte) error {
	var f chatFrame
	if err := decodeFrame(data, &f); err != nil {
		return err
	}
	switch {
	case f.SenderID == nil:
		return missing("sender_id")
	case f.ReceiverID == nil:
		return missing("receiver_id")
	case f.Message == nil:
		return missing("message")
	case f.UUID == nil || *f.UUID == "":
		return missing("uuid")
	case f.Timestamp == nil:
		return missing("timestamp")
	}
	if *f.SenderID != c.UserID {
		return fmt.Errorf("%w: sender_id %d on connection of user %d", ErrSenderMismatch, *f.SenderID, c.UserID)
	}

	var image *string
	if f.File != nil {
		if h.media == nil {
			return ErrMediaDisabled
		}
		name, err := h.media.Save(*f.File)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		image = &name
	}

	rec, err := h.store.InsertChat(ctx, ChatRecord{
		SenderID:   *f.SenderID,
		ReceiverID: *f.ReceiverID,
		Message:    *f.Message,
		Timestamp:  *f.Timestamp,
		UUID:       *f.UUID,
		Image:      image,
	})
	if err != nil {
		return fmt.Errorf("insert chat %s: %w", *f.UUID, err)
	}

	updateID := h.ids.NextID()
	update, err := newEvent(KindMsgUpdate, updateID, msgUpdateOut{
		Type:      KindMsgUpdate,
		UUID:      rec.UUID,
		Event:     "sent",
		MessageID: updateID,
	})
	if err != nil {
		return err
	}
	h.queue.Send(rec.SenderID, update)

	if rec.SenderID == rec.ReceiverID {
		return nil
	}
	chatID := h.ids.NextID()
	msg, err := newEvent(KindChat, chatID, chatOut{Type: KindChat, MessageID: chatID, ChatRecord: rec})
	if err != nil {
		return err
	}
	h.queue.Send(rec.ReceiverID, msg)
	h.logger.Info("chat routed", "operation", "chat",
		"user_id", rec.SenderID, "receiver_id", rec.ReceiverID, "message_id", chatID)
	return nil
}

func (h *Hub) handleTyping(c *Client, kind Kind, data []byte) error {
	var f typingFrame
	if err := decodeFrame(data, &f); err != nil {
		return err
	}
	if f.SenderID == nil {
		return missing("sender_id")
	}
	if f.ReceiverID == nil {
		return missing("receiver_id")
	}
	if *f.SenderID != c.UserID {
		return fmt.Errorf("%w: sender_id %d on connection of user %d", ErrSenderMismatch, *f.SenderID, c.UserID)
	}
	id := h.ids.NextID()
	ev, err := newEvent(kind, id, typingOut{Type: kind, SenderID: *f.SenderID, MessageID: id})
	if err != nil {
		return err
	}
	h.queue.Send(*f.ReceiverID, ev)
	return nil
}

// handlePing answers directly on the socket; pongs never enter the queue.
func (h *Hub) handlePing(c *Client, data []byte) error {
	var f pingFrame
	if err := decodeFrame(data, &f); err != nil {
		return err
	}
	if f.UserID == nil {
		return missing("user_id")
	}
	payload, err := json.Marshal(pongOut{Type: KindPong, UserID: *f.UserID})
	if err != nil {
		return err
	}
	if err := c.Send(payload); err != nil {
		return fmt.Errorf("send pong: %w", err)
	}
	return nil
}

// handleAck only clears deliveries addressed to the acking connection's user.
func (h *Hub) handleAck(c *Client, data []byte) error {
	var f ackFrame
	if err := decodeFrame(data, &f); err != nil {
		return err
	}
	if f.MessageID == nil || *f.MessageID == "" {
		return missing("message_id")
	}
	if f.ReceiverID != nil && *f.ReceiverID != c.UserID {
		return fmt.Errorf("%w: ack for receiver %d on connection of user %d", ErrSenderMismatch, *f.ReceiverID, c.UserID)
	}
	if !h.queue.Acknowledge(c.UserID, *f.MessageID) && h.queue.Pending(*f.MessageID) {
		h.logger.Warn("ack for another user's delivery ignored", "operation", "ack",
			"user_id", c.UserID, "message_id", *f.MessageID)
	}
	return nil
}
