package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

// App handles room business logic: creation, presence, authorization and updates.
type App struct {
	repo      Repository
	publisher Publisher
	inviter   Inviter
	clock     clockwork.Clock
	tokens    TokenGenerator
}

// NewApp creates a new rooms App. inviter may be nil, in which case minted
// tokens are only logged.
func NewApp(repo Repository, publisher Publisher, inviter Inviter, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:      repo,
		publisher: publisher,
		inviter:   inviter,
		clock:     clock,
		tokens:    RandomToken,
	}
}

// SetTokenGenerator replaces the token source.
func (a *App) SetTokenGenerator(gen TokenGenerator) {
	a.tokens = gen
}

// Now returns the server clock in milliseconds.
func (a *App) Now() float64 {
	return models.Millis(a.clock.Now())
}

// CreateRoom creates a room owned by req.OwnerEmail and mints the owner's token.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*CreateRoomResult, error) {
	slug := SanitizeSlug(req.Slug)
	if strings.Trim(slug, "-") == "" {
		return nil, fmt.Errorf("%w: slug is required", ErrInvalidRoom)
	}
	email := normalizeEmail(req.OwnerEmail)
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid owner email %q", ErrInvalidRoom, req.OwnerEmail)
	}

	room := models.NewRoom(slug, strings.TrimSpace(req.Title), email, a.Now())
	token, err := mintToken(a.tokens, func(string) bool { return false })
	if err != nil {
		return nil, fmt.Errorf("failed to mint owner token: %w", err)
	}
	owner := models.Invitee{Email: email, Role: models.RoleOwner}
	room.Invitees[token] = owner

	if err := a.repo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room %s: %w", slug, err)
	}

	log.Info().Str("slug", slug).Str("owner", email).Msg("Created room")
	a.deliver(ctx, room, []Invitation{{Token: token, Invitee: owner}})
	return &CreateRoomResult{Room: room, OwnerToken: token}, nil
}

// GetRoom retrieves a room by slug
func (a *App) GetRoom(ctx context.Context, slug string) (*models.Room, error) {
	room, err := a.repo.Get(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", slug, err)
	}
	return room, nil
}

// Connect records one more session holding token (empty for anonymous)
// and publishes the new presence.
func (a *App) Connect(ctx context.Context, slug, token string) (*models.Room, error) {
	room, err := a.repo.Update(ctx, slug, func(room *models.Room) error {
		room.ConnectedTokens = room.ConnectedTokens.Add(token)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room %s: %w", slug, err)
	}
	a.publish(ctx, room)
	return room, nil
}

// Disconnect removes exactly one occurrence of token from the room's presence.
func (a *App) Disconnect(ctx context.Context, slug, token string) (*models.Room, error) {
	room, err := a.repo.Update(ctx, slug, func(room *models.Room) error {
		var found bool
		room.ConnectedTokens, found = room.ConnectedTokens.Remove(token)
		if !found {
			log.Warn().Str("slug", slug).Bool("anonymous", token == "").Msg("Disconnect without matching presence")
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to disconnect from room %s: %w", slug, err)
	}
	a.publish(ctx, room)
	return room, nil
}

// ApplyUpdate applies a partial update on behalf of the session holding token.
// Only owners and maestros may change settings; only owners may change
// isPublic and the invitee list. Anyone else gets ErrUnauthorized and the
// room is not written.
func (a *App) ApplyUpdate(ctx context.Context, slug, token string, update models.RoomUpdate) (*UpdateResult, error) {
	result := &UpdateResult{}

	room, err := a.repo.Update(ctx, slug, func(room *models.Room) error {
		result.Rejected = nil
		result.Invited = nil

		role := room.RoleFor(token)
		result.Role = role
		if !role.CanEditSettings() {
			return ErrUnauthorized
		}

		result.Rejected = models.ApplySettings(room, update, a.Now())

		if !update.TouchesSharing() {
			return nil
		}
		if !role.CanManageSharing() {
			result.Rejected = append(result.Rejected, sharingFields(update)...)
			return nil
		}

		if update.IsPublic != nil {
			room.IsPublic = *update.IsPublic
		}
		if update.Invitees != nil {
			minted, err := reconcileInvitees(room, *update.Invitees, a.tokens)
			switch {
			case errors.Is(err, ErrLastOwner):
				log.Warn().Str("slug", slug).Msg("Refused invitee change that removes every owner")
				result.Rejected = append(result.Rejected, "invitees")
			case err != nil:
				return fmt.Errorf("failed to reconcile invitees: %w", err)
			default:
				result.Invited = minted
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			log.Debug().Str("slug", slug).Str("role", string(result.Role)).Msg("Unauthorized room update")
		}
		return nil, fmt.Errorf("failed to update room %s: %w", slug, err)
	}

	result.Room = room
	if len(result.Rejected) > 0 {
		log.Debug().Str("slug", slug).Strs("fields", result.Rejected).Msg("Ignored room update fields")
	}
	a.publish(ctx, room)
	a.deliver(ctx, room, result.Invited)
	return result, nil
}

// Join resolves an invitation token. It fails with ErrUnauthorized when the
// token is not (or no longer) an invitee of the room.
func (a *App) Join(ctx context.Context, slug, token string) (*models.Room, models.Role, error) {
	room, err := a.GetRoom(ctx, slug)
	if err != nil {
		return nil, models.RoleAnonymous, err
	}
	role := room.RoleFor(token)
	if role == models.RoleAnonymous {
		return nil, role, ErrUnauthorized
	}
	return room, role, nil
}

func sharingFields(update models.RoomUpdate) []string {
	var fields []string
	if update.IsPublic != nil {
		fields = append(fields, "isPublic")
	}
	if update.Invitees != nil {
		fields = append(fields, "invitees")
	}
	return fields
}

func (a *App) publish(ctx context.Context, room *models.Room) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, room); err != nil {
		log.Error().Err(err).Str("slug", room.Slug).Msg("Failed to publish room update")
	}
}

func (a *App) deliver(ctx context.Context, room *models.Room, invitations []Invitation) {
	for _, inv := range invitations {
		if a.inviter == nil {
			log.Info().Str("slug", room.Slug).Str("email", inv.Invitee.Email).Msg("Minted invitation token")
			continue
		}
		if err := a.inviter.SendInvitation(ctx, room, inv.Invitee, inv.Token); err != nil {
			log.Error().Err(err).Str("slug", room.Slug).Str("email", inv.Invitee.Email).Msg("Failed to send invitation")
		}
	}
}
