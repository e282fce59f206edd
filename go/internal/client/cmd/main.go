package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/beatclock"
	"github.com/mcdev12/metronome/go/internal/client"
	"github.com/mcdev12/metronome/go/internal/models"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	config := client.DefaultConfig()
	var (
		slug       = flag.String("slug", "", "room slug")
		token      = flag.String("token", "", "invitation token for the room")
		createAs   = flag.String("create", "", "create the room with this owner email")
		title      = flag.String("title", "", "title for a created room")
		bpm        = flag.Float64("bpm", 0, "set the tempo after joining")
		measure    = flag.String("measure", "", "set beats per measure (number or none)")
		key        = flag.String("key", "", "set the key")
		duration   = flag.Duration("for", 10*time.Second, "how long to print ticks, 0 runs until interrupted")
		debug      = flag.Bool("debug", false, "debug logging")
		serverAddr = flag.String("server", getEnv("METRONOME_URL", config.ServerURL), "server base URL")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if *slug == "" {
		fmt.Fprintln(os.Stderr, "usage: metronome-client -slug <room> [-create email] [-token t] [-bpm n] [-measure n|none] [-key k]")
		os.Exit(2)
	}

	update, err := buildUpdate(*bpm, *measure, *key)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	config.ServerURL = *serverAddr
	c := client.New(config, nil)

	if *createAs != "" {
		view, err := c.CreateRoom(ctx, *slug, *title, *createAs)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create room")
		}
		*slug = view.Slug
		log.Info().Str("slug", view.Slug).Str("token", c.Token(view.Slug)).Msg("room created")
	} else if *token != "" {
		if err := c.Join(ctx, *slug, *token); err != nil {
			log.Fatal().Err(err).Msg("failed to join room")
		}
	}

	estimator, offset, err := c.Synchronize(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("clock sync failed")
	}
	log.Info().Float64("offset_ms", offset).Msg("clock synchronized")

	session, err := c.Connect(ctx, *slug)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to room")
	}
	defer session.Close()

	if !update.IsEmpty() {
		if err := session.Send(update); err != nil {
			log.Fatal().Err(err).Msg("failed to send update")
		}
	}

	scheduler := beatclock.NewScheduler(nil, estimator, beatclock.DefaultSchedulerConfig())
	go scheduler.Run(ctx, func(tick beatclock.Tick) {
		ev := log.Info()
		if tick.Beat.Accent {
			ev = log.Warn()
		}
		ev.Int("beat", tick.Beat.Number).
			Float64("in_ms", tick.At-estimator.Now()).
			Float64("hz", tick.Frequency).
			Bool("muted", tick.Muted).
			Msg("tick")
	})

	client.Follow(ctx, session, scheduler, offset, func(view *models.RoomView) {
		ev := log.Info().Str("slug", view.Slug).Str("role", string(view.ViewerRole()))
		if view.Settings != nil {
			ev = ev.Float64("bpm", view.BeatsPerMinute).
				Str("measure", view.BeatsPerMeasure.String()).
				Str("key", string(view.Key))
		}
		if view.Connections != nil {
			ev = ev.Int("listeners", view.Connections.Total)
		}
		ev.Msg("room view")
	})
}

func buildUpdate(bpm float64, measure, key string) (models.RoomUpdate, error) {
	var update models.RoomUpdate
	if bpm > 0 {
		update.BeatsPerMinute = &bpm
	}
	if measure != "" {
		m, err := models.ParseBeatsPerMeasure(measure)
		if err != nil {
			return update, err
		}
		update.BeatsPerMeasure = &m
	}
	if key != "" {
		k := models.Key(key)
		if !k.Valid() {
			return update, fmt.Errorf("unknown key %q", key)
		}
		update.Key = &k
	}
	return update, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
