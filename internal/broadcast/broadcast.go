// Package broadcast carries session change notifications between agents that share one
// storage namespace. It is a notification path only: receivers always re-read storage and
// never take the event as the source of truth.
package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names a session change.
type Kind string

const (
	KindSessionSaved   Kind = "session.saved"
	KindSessionCleared Kind = "session.cleared"
)

// Event is the message schema published on every channel.
type Event struct {
	ID     uuid.UUID `json:"id"`
	Origin uuid.UUID `json:"origin"`
	Kind   Kind      `json:"kind"`
	At     time.Time `json:"at"`
}

// NewEvent stamps a new event from origin.
func NewEvent(origin uuid.UUID, kind Kind) Event {
	return Event{ID: uuid.New(), Origin: origin, Kind: kind, At: time.Now().UTC()}
}

// Channel is a fan-out pub/sub channel. Subscribe returns a channel that is closed once ctx
// is done or the Channel is closed.
type Channel interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context) (<-chan Event, error)
	Close() error
}
