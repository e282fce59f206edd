package rooms

import (
	"context"
	"sync"

	"github.com/mcdev12/metronome/go/internal/models"
)

// MemoryRepository keeps rooms in process memory. It is only shared by the
// sessions of a single instance and is meant for development and tests.
type MemoryRepository struct {
	mu    sync.Mutex
	rooms map[string]*models.Room
}

// NewMemoryRepository creates an empty in-memory room store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rooms: make(map[string]*models.Room)}
}

func (r *MemoryRepository) Create(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.Slug]; ok {
		return ErrRoomExists
	}
	r.rooms[room.Slug] = room.Clone()
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, slug string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[slug]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room.Clone(), nil
}

func (r *MemoryRepository) Put(_ context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rooms[room.Slug] = room.Clone()
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, slug string, fn func(room *models.Room) error) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.rooms[slug]
	if !ok {
		return nil, ErrRoomNotFound
	}
	room := stored.Clone()
	if err := fn(room); err != nil {
		return nil, err
	}
	r.rooms[slug] = room.Clone()
	return room, nil
}
