package rooms

import (
	"context"

	"github.com/mcdev12/metronome/go/internal/models"
)

// CreateRoomRequest represents the data needed to create a new room
type CreateRoomRequest struct {
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	OwnerEmail string `json:"ownerEmail"`
}

// Repository is the durable room store shared by every server instance.
type Repository interface {
	// Create stores a new room, failing with ErrRoomExists if the slug is taken.
	Create(ctx context.Context, room *models.Room) error
	// Get returns the room or ErrRoomNotFound.
	Get(ctx context.Context, slug string) (*models.Room, error)
	// Put overwrites the stored room.
	Put(ctx context.Context, room *models.Room) error
	// Update reads the room, applies fn and writes the result back as one
	// step. If fn returns an error nothing is written.
	Update(ctx context.Context, slug string, fn func(room *models.Room) error) (*models.Room, error)
}

// Publisher notifies every server instance that a room changed.
type Publisher interface {
	Publish(ctx context.Context, room *models.Room) error
}

// Inviter delivers a freshly minted token to its invitee.
type Inviter interface {
	SendInvitation(ctx context.Context, room *models.Room, invitee models.Invitee, token string) error
}

// Invitation is a token minted during an operation, pending delivery.
type Invitation struct {
	Token   string
	Invitee models.Invitee
}

// UpdateResult is the outcome of an authorized update.
type UpdateResult struct {
	Room *models.Room
	Role models.Role
	// Rejected names the fields that were present but not applied.
	Rejected []string
	Invited  []Invitation
}

// CreateRoomResult carries the new room and the owner's token.
type CreateRoomResult struct {
	Room       *models.Room
	OwnerToken string
}
