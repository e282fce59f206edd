package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/metronome/go/internal/dbconfig"
	"github.com/mcdev12/metronome/go/internal/models"
	"github.com/mcdev12/metronome/go/internal/rooms"
)

// SeedRoom mirrors the JSON snapshot
type SeedRoom struct {
	Slug            string                 `json:"slug"`
	Title           string                 `json:"title"`
	OwnerEmail      string                 `json:"ownerEmail"`
	BeatsPerMinute  float64                `json:"beatsPerMinute"`
	BeatsPerMeasure models.BeatsPerMeasure `json:"beatsPerMeasure"`
	Key             models.Key             `json:"key"`
	IsPublic        *bool                  `json:"isPublic"`
	Presets         []models.Preset        `json:"presets"`
}

func main() {
	ctx := context.Background()

	path := "go/internal/assets/rooms.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seeds []SeedRoom
	if err := json.Unmarshal(data, &seeds); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := cfg.Connect(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := rooms.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare room table: %v\n", err)
		os.Exit(1)
	}

	// 3) Insert and count
	var (
		total    = len(seeds)
		inserted int
		skipped  int
		errs     int
	)

	now := models.Millis(time.Now())
	for _, s := range seeds {
		room, token, err := buildRoom(s, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid room %q: %v\n", s.Slug, err)
			errs++
			continue
		}

		err = repo.Create(ctx, room)
		switch {
		case errors.Is(err, rooms.ErrRoomExists):
			skipped++
		case err != nil:
			fmt.Fprintf(os.Stderr, "error inserting room %s: %v\n", room.Slug, err)
			errs++
		default:
			inserted++
			fmt.Printf("%s owner token: %s\n", room.Slug, token)
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Rooms seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		total, inserted, skipped, errs,
	)
}

func buildRoom(s SeedRoom, now float64) (*models.Room, string, error) {
	slug := rooms.SanitizeSlug(s.Slug)
	if slug == "" || s.OwnerEmail == "" {
		return nil, "", errors.New("slug and ownerEmail are required")
	}

	token, err := rooms.RandomToken()
	if err != nil {
		return nil, "", err
	}

	room := models.NewRoom(slug, s.Title, s.OwnerEmail, now)
	room.Invitees[token] = models.Invitee{Email: s.OwnerEmail, Role: models.RoleOwner}
	if s.BeatsPerMinute > 0 {
		room.BeatsPerMinute = s.BeatsPerMinute
	}
	if s.BeatsPerMeasure.Valid() {
		room.BeatsPerMeasure = s.BeatsPerMeasure
	}
	if s.Key.Valid() {
		room.Key = s.Key
	}
	if s.IsPublic != nil {
		room.IsPublic = *s.IsPublic
	}
	if s.Presets != nil {
		room.Presets = s.Presets
	}
	return room, token, nil
}
