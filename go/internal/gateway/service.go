package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/fanout"
)

// Service is the room gateway: websocket sessions, time echo, fan-out
// consumption and the HTTP room API
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	timeHandler       *TimeHandler
	roomHandler       *RoomHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	CookieConfig     CookieConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		CookieConfig:     DefaultCookieConfig(),
	}
}

// NewService creates a new gateway service
func NewService(config Config, rooms Rooms, bus fanout.Bus, clock clockwork.Clock) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, rooms, config.CookieConfig),
		timeHandler:       NewTimeHandler(config.ConnectionConfig, clock),
		roomHandler:       NewRoomHandler(rooms, config.CookieConfig),
		eventConsumer:     NewEventConsumer(connectionManager, rooms, bus),
	}
}

// Start subscribes to room updates and runs the broadcaster until ctx is done.
// It returns once the subscription is live.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	if err := s.eventConsumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event consumer: %w", err)
	}
	go s.connectionManager.Start(ctx)
	return nil
}

// Stop gracefully shuts down the gateway service
func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the gateway HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.timeHandler.RegisterRoutes(mux)
	s.roomHandler.RegisterRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "room_gateway"
	stats["status"] = "running"
	return stats
}
