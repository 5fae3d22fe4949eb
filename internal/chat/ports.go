package chat

import (
	"context"

	"github.com/pelusa-v/pelusa-relay/internal/media"
)

// Persistence is the relational store holding users and chat history. Both calls must be
// all-or-nothing.
type Persistence interface {
	// MarkStatus returns the updated user id, or ok=false when no such user exists.
	MarkStatus(ctx context.Context, userID int64, status Status) (id int64, ok bool, err error)
	InsertChat(ctx context.Context, rec ChatRecord) (ChatRecord, error)
}

// OfflineStore buffers serialized events per receiver until the receiver reconnects.
type OfflineStore interface {
	Store(ctx context.Context, receiverID int64, messageID string, payload []byte) error
	RetrieveAll(ctx context.Context, receiverID int64) (map[string][]byte, error)
	Delete(ctx context.Context, receiverID int64, messageID string) error
}

type MediaStore interface {
	Save(u media.Upload) (string, error)
}

// Transport is a live connection that can carry one frame at a time.
type Transport interface {
	Send(data []byte) error
}
