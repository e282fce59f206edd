package rooms

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrInvalidRoom  = errors.New("invalid room")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLastOwner is returned when an invitee change would leave the room without an owner.
	ErrLastOwner = errors.New("room must keep an owner")
	// ErrConflict means an optimistic update kept losing races.
	ErrConflict = errors.New("room update conflict")
)
