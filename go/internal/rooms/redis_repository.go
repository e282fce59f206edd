package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/metronome/go/internal/models"
)

// DefaultKeyPrefix namespaces room keys in a shared key-value store.
const DefaultKeyPrefix = "metronome:room:"

const defaultUpdateRetries = 10

// RedisRepository stores each room as one JSON string under prefix+slug.
// Updates use WATCH/MULTI and retry when another writer got there first.
type RedisRepository struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
}

// NewRedisRepository creates a room store on top of client
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisRepository{
		client:     client,
		prefix:     prefix,
		maxRetries: defaultUpdateRetries,
	}
}

func (r *RedisRepository) key(slug string) string {
	return r.prefix + slug
}

func (r *RedisRepository) Create(ctx context.Context, room *models.Room) error {
	data, err := models.EncodeRoom(room)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.key(room.Slug), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ErrRoomExists
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, slug string) (*models.Room, error) {
	return r.get(ctx, r.client, slug)
}

func (r *RedisRepository) get(ctx context.Context, c redis.Cmdable, slug string) (*models.Room, error) {
	data, err := c.Get(ctx, r.key(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return models.DecodeRoom(data)
}

func (r *RedisRepository) Put(ctx context.Context, room *models.Room) error {
	data, err := models.EncodeRoom(room)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(room.Slug), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *RedisRepository) Update(ctx context.Context, slug string, fn func(room *models.Room) error) (*models.Room, error) {
	key := r.key(slug)
	var updated *models.Room

	txf := func(tx *redis.Tx) error {
		room, err := r.get(ctx, tx, slug)
		if err != nil {
			return err
		}
		if err := fn(room); err != nil {
			return err
		}
		data, err := models.EncodeRoom(room)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			updated = room
		}
		return err
	}

	for i := 0; i < r.maxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrConflict, slug, r.maxRetries)
}
