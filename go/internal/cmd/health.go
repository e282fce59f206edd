package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/fanout"
	"github.com/mcdev12/metronome/go/internal/gateway"
)

type HealthStatus struct {
	Healthy     bool
	Instance    string
	Postgres    *bool
	Redis       *bool
	NATS        *bool
	Connections int
	ActiveRooms int
	Errors      []string
}

// connectionChecker is implemented by fan-out buses that hold a live connection
type connectionChecker interface {
	IsConnected() bool
}

type HealthChecker struct {
	backends   *Backends
	bus        fanout.Bus
	gateway    *gateway.Service
	instanceID string
}

func NewHealthChecker(backends *Backends, services *Services) *HealthChecker {
	return &HealthChecker{
		backends:   backends,
		bus:        services.Bus,
		gateway:    services.Gateway,
		instanceID: services.InstanceID,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:  true,
		Instance: h.instanceID,
		Errors:   []string{},
	}

	// Check database connection
	if h.backends.Postgres != nil {
		ok := true
		if err := h.backends.Postgres.Ping(ctx); err != nil {
			ok = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
		status.Postgres = &ok
	}

	// Check redis connection
	if h.backends.Redis != nil {
		ok := true
		if err := h.backends.Redis.Ping(ctx).Err(); err != nil {
			ok = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("redis ping failed: %v", err))
		}
		status.Redis = &ok
	}

	// Check NATS connection
	if nc, isConn := h.bus.(connectionChecker); isConn {
		ok := nc.IsConnected()
		if !ok {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
		status.NATS = &ok
	}

	stats := h.gateway.GetStats()
	status.Connections, _ = stats["total_connections"].(int)
	status.ActiveRooms, _ = stats["active_rooms"].(int)

	return status
}

// HTTP handler helper
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	response := map[string]interface{}{
		"healthy":      status.Healthy,
		"instance":     status.Instance,
		"connections":  status.Connections,
		"active_rooms": status.ActiveRooms,
		"errors":       status.Errors,
	}
	if status.Postgres != nil {
		response["postgres_connected"] = *status.Postgres
	}
	if status.Redis != nil {
		response["redis_connected"] = *status.Redis
	}
	if status.NATS != nil {
		response["nats_connected"] = *status.NATS
	}

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to write health details")
	}
}
