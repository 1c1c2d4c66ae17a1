// Package storage is the persistence boundary consumed by the session core.
// Rooms, users, and whiteboard blobs live here; live session membership does not.
package storage

import (
	"context"
	"errors"
)

var ErrNoRecord = errors.New("no record")

type Room struct {
	ID         int64
	Name       string
	Secret     string // empty means the room is open to any student
	OwnerID    int64
	Whiteboard []byte
}

type User struct {
	ID   int64
	Name string
}

// Provider is the narrow interface the session registry consumes.
type Provider interface {
	// RoomWithOwner resolves a room together with its owning user id.
	// Returns ErrNoRecord when the room is absent.
	RoomWithOwner(ctx context.Context, id int64) (*Room, error)
	// UserByID resolves a user. Returns ErrNoRecord when absent.
	UserByID(ctx context.Context, id int64) (*User, error)
	// SaveWhiteboard persists the last whiteboard snapshot of a room.
	SaveWhiteboard(ctx context.Context, roomID int64, blob []byte) error
}
