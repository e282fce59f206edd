package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/config"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := loadConfig(config.FetchPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backends, err := setupBackends(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect backends")
	}
	defer backends.Close()

	services, err := setupServices(cfg, backends)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	// Start gateway service (fan-out consumer and connection manager)
	if err := services.Gateway.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start gateway service")
	}

	server := setupServer(cfg, services, backends)

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("store", cfg.Store.Backend).
			Str("fanout", cfg.Fanout.Backend).
			Str("instance", services.InstanceID).
			Msg("metronome server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if err := services.Gateway.Stop(); err != nil {
		log.Error().Err(err).Msg("gateway shutdown failed")
	}
	if err := services.Bus.Close(); err != nil {
		log.Error().Err(err).Msg("fan-out bus close failed")
	}
	cancel()

	log.Info().Msg("metronome server shutdown complete")
}
