package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/metronome/go/internal/config"
	"github.com/mcdev12/metronome/go/internal/fanout"
	"github.com/mcdev12/metronome/go/internal/gateway"
	"github.com/mcdev12/metronome/go/internal/mailer"
	"github.com/mcdev12/metronome/go/internal/rooms"
)

type Services struct {
	InstanceID string
	Rooms      *rooms.App
	Bus        fanout.Bus
	Gateway    *gateway.Service
}

func setupServices(cfg *config.Config, backends *Backends) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Fan-out → Rooms app → Gateway
	clock := clockwork.NewRealClock()
	instanceID := uuid.NewString()

	repo, err := setupRepository(cfg, backends)
	if err != nil {
		return nil, err
	}

	bus, err := setupBus(cfg, backends, instanceID, clock)
	if err != nil {
		return nil, err
	}

	inviter := mailer.NewInvitationSender(setupMailer(cfg.Mail), cfg.Server.BaseURL)
	app := rooms.NewApp(repo, bus, inviter, clock)

	gatewayService := gateway.NewService(gatewayConfig(cfg), app, bus, clock)

	return &Services{
		InstanceID: instanceID,
		Rooms:      app,
		Bus:        bus,
		Gateway:    gatewayService,
	}, nil
}

func setupRepository(cfg *config.Config, backends *Backends) (rooms.Repository, error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		return rooms.NewRedisRepository(backends.Redis, cfg.Store.KeyPrefix), nil
	case config.BackendPostgres:
		repo := rooms.NewPostgresRepository(backends.Postgres)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to prepare room table: %w", err)
		}
		return repo, nil
	default:
		return rooms.NewMemoryRepository(), nil
	}
}

func setupBus(cfg *config.Config, backends *Backends, instanceID string, clock clockwork.Clock) (fanout.Bus, error) {
	switch cfg.Fanout.Backend {
	case config.BackendNATS:
		natsConfig := fanout.DefaultNATSConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.Subject = cfg.Fanout.Channel
		natsConfig.Origin = instanceID
		natsConfig.MaxReconnects = cfg.NATS.MaxReconnects
		natsConfig.ReconnectWait = cfg.NATS.ReconnectWait
		return fanout.NewNATSBus(natsConfig, clock)
	case config.BackendRedis:
		return fanout.NewRedisBus(backends.Redis, cfg.Fanout.Channel, instanceID, clock), nil
	default:
		return fanout.NewMemoryBus(instanceID, clock), nil
	}
}

func setupMailer(cfg config.MailConfig) mailer.Mailer {
	if cfg.Backend == config.BackendSMTP {
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
		})
	}
	return mailer.LogMailer{}
}

func gatewayConfig(cfg *config.Config) gateway.Config {
	gc := gateway.DefaultConfig()

	cc := &gc.ConnectionConfig
	cc.WriteTimeout = cfg.WebSocket.WriteTimeout
	cc.ReadTimeout = cfg.WebSocket.ReadTimeout
	cc.PingInterval = cfg.WebSocket.PingInterval
	cc.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	cc.SendBufferSize = cfg.WebSocket.SendBuffer
	cc.CheckOrigin = originChecker(cfg.Server.AllowedOrigins)

	gc.CookieConfig.Prefix = cfg.Server.CookiePrefix
	gc.CookieConfig.Secure = cfg.Server.SecureCookies
	return gc
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
