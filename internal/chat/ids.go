package chat

import "github.com/google/uuid"

type IDGenerator interface {
	NextID() string
}

// UUIDGenerator issues UUIDv7 ids: a millisecond timestamp prefix, a monotonic counter and random
// bits, so ids sort roughly by creation time and never repeat within the process.
type UUIDGenerator struct{}

func (UUIDGenerator) NextID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
