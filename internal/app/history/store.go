/*
Package history provides the message-persistence collaborator consumed by the
realtime core.

The core appends chat messages fire-and-forget and reads recent history when a
client joins a room. Durability never gates delivery: a failed append is
logged and dropped.
*/
package history

import (
	"context"
	"time"
)

// Message is a persisted chat message event, keyed by room.
type Message struct {
	ID        string
	RoomID    string
	Username  string
	Body      string
	CreatedAt time.Time
}

// Store is the narrow interface the realtime core consumes.
type Store interface {
	// Append writes one chat message event. Callers treat errors as
	// non-fatal; delivery has already happened.
	Append(ctx context.Context, msg Message) error

	// Recent returns up to limit messages for a room in chronological order.
	Recent(ctx context.Context, roomID string, limit int) ([]Message, error)
}
