package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/config"
)

// Backends holds the shared connections the configured store and fan-out use
type Backends struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Store.Backend == config.BackendRedis || cfg.Fanout.Backend == config.BackendRedis
}

func setupBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	backends := &Backends{}

	if cfg.Store.Backend == config.BackendPostgres {
		pool, err := setupDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		backends.Postgres = pool
	}

	if needsRedis(cfg) {
		client, err := setupRedis(ctx, cfg.Redis)
		if err != nil {
			backends.Close()
			return nil, err
		}
		backends.Redis = client
	}

	return backends, nil
}

func setupDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dbCfg := cfg.Database

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := dbCfg.Connect(connectCtx)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user", dbCfg.User).
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("database", dbCfg.Database).
		Msg("connected to database")
	return pool, nil
}

func setupRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("connected to redis")
	return client, nil
}

// Close closes all backend connections
func (b *Backends) Close() {
	if b.Redis != nil {
		if err := b.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("redis close failed")
		}
	}
	if b.Postgres != nil {
		b.Postgres.Close()
	}
}
