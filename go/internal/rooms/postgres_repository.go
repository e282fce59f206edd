package rooms

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mcdev12/metronome/go/internal/models"
	"github.com/mcdev12/metronome/go/internal/sqlutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS metronome_rooms (
    slug       TEXT PRIMARY KEY,
    state      JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is what the repository needs from a connection pool.
type Pool interface {
	DBTX
	sqlutil.Beginner
}

type queries struct {
	db DBTX
}

func newQueries(tx pgx.Tx) *queries {
	return &queries{db: tx}
}

func (q *queries) insertRoom(ctx context.Context, slug string, state []byte) (bool, error) {
	tag, err := q.db.Exec(ctx, `
        INSERT INTO metronome_rooms (slug, state) VALUES ($1, $2)
        ON CONFLICT (slug) DO NOTHING
    `, slug, state)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *queries) upsertRoom(ctx context.Context, slug string, state []byte) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO metronome_rooms (slug, state) VALUES ($1, $2)
        ON CONFLICT (slug) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
    `, slug, state)
	return err
}

func (q *queries) selectRoom(ctx context.Context, slug string, forUpdate bool) ([]byte, error) {
	query := `SELECT state FROM metronome_rooms WHERE slug = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var state []byte
	if err := q.db.QueryRow(ctx, query, slug).Scan(&state); err != nil {
		return nil, err
	}
	return state, nil
}

// PostgresRepository stores each room as a jsonb row. Updates lock the row
// for the duration of the read-modify-write.
type PostgresRepository struct {
	pool    Pool
	queries *queries
}

// NewPostgresRepository creates a room store on top of pool
func NewPostgresRepository(pool Pool) *PostgresRepository {
	return &PostgresRepository{
		pool:    pool,
		queries: &queries{db: pool},
	}
}

// EnsureSchema creates the rooms table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create rooms table: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, room *models.Room) error {
	data, err := models.EncodeRoom(room)
	if err != nil {
		return err
	}
	inserted, err := r.queries.insertRoom(ctx, room.Slug, data)
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	if !inserted {
		return ErrRoomExists
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, slug string) (*models.Room, error) {
	return r.get(ctx, r.queries, slug, false)
}

func (r *PostgresRepository) get(ctx context.Context, q *queries, slug string, forUpdate bool) (*models.Room, error) {
	data, err := q.selectRoom(ctx, slug, forUpdate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select room: %w", err)
	}
	return models.DecodeRoom(data)
}

func (r *PostgresRepository) Put(ctx context.Context, room *models.Room) error {
	data, err := models.EncodeRoom(room)
	if err != nil {
		return err
	}
	if err := r.queries.upsertRoom(ctx, room.Slug, data); err != nil {
		return fmt.Errorf("failed to upsert room: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, slug string, fn func(room *models.Room) error) (*models.Room, error) {
	var updated *models.Room
	err := sqlutil.Run(ctx, r.pool, newQueries, func(q *queries) error {
		room, err := r.get(ctx, q, slug, true)
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
		if err := q.upsertRoom(ctx, slug, data); err != nil {
			return fmt.Errorf("failed to upsert room: %w", err)
		}
		updated = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
