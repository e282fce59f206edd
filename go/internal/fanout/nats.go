package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

// NATSConfig holds configuration for the NATS bus
type NATSConfig struct {
	URL           string
	Subject       string
	Origin        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS bus configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Subject:       DefaultChannel,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// NATSBus fans out over a core NATS subject. Every subscriber receives every
// message, which is what each instance needs to reach its own sessions.
type NATSBus struct {
	nc       *nats.Conn
	config   NATSConfig
	envelope envelope
}

// NewNATSBus connects to NATS
func NewNATSBus(config NATSConfig, clock clockwork.Clock) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name("metronome-" + config.Origin),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSBusFromConn(nc, config, clock), nil
}

// NewNATSBusFromConn wraps an existing connection.
func NewNATSBusFromConn(nc *nats.Conn, config NATSConfig, clock clockwork.Clock) *NATSBus {
	if config.Subject == "" {
		config.Subject = DefaultChannel
	}
	return &NATSBus{
		nc:       nc,
		config:   config,
		envelope: newEnvelope(config.Origin, clock),
	}
}

func (b *NATSBus) Publish(_ context.Context, room *models.Room) error {
	data, err := b.envelope.encode(room)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.config.Subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", b.config.Subject, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(b.config.Subject, func(msg *nats.Msg) {
		dispatch(ctx, "nats", msg.Data, handler)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", b.config.Subject, err)
	}
	// make sure the server registered the interest before returning
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}

	log.Info().Str("subject", b.config.Subject).Msg("subscribed to room updates")
	return sub, nil
}

func (b *NATSBus) Close() error {
	log.Info().Msg("closing NATS bus")
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}

// IsConnected reports whether the NATS connection is up
func (b *NATSBus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}
