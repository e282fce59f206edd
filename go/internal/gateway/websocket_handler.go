package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
	"github.com/mcdev12/metronome/go/internal/rooms"
)

// Rooms is what the gateway needs from the rooms app
type Rooms interface {
	CreateRoom(ctx context.Context, req rooms.CreateRoomRequest) (*rooms.CreateRoomResult, error)
	GetRoom(ctx context.Context, slug string) (*models.Room, error)
	Join(ctx context.Context, slug, token string) (*models.Room, models.Role, error)
	Connect(ctx context.Context, slug, token string) (*models.Room, error)
	Disconnect(ctx context.Context, slug, token string) (*models.Room, error)
	ApplyUpdate(ctx context.Context, slug, token string, update models.RoomUpdate) (*rooms.UpdateResult, error)
}

const storeTimeout = 5 * time.Second

// WebSocketHandler serves the room-info channel
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	rooms             Rooms
	cookies           CookieConfig
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, rooms Rooms, cookies CookieConfig) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		rooms:             rooms,
		cookies:           cookies,
	}
}

// HandleInfo attaches a session to the room named by the slug query parameter.
// Sessions without a slug, or for a room that does not exist, stay open but
// are never registered and receive nothing.
func (h *WebSocketHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	token := h.cookies.Token(r, slug)

	conn, err := h.connectionManager.Upgrade(w, r, slug, token)
	if err != nil {
		log.Error().Err(err).Str("slug", slug).Msg("failed to upgrade WebSocket connection")
		return
	}

	if slug == "" {
		log.Warn().Str("connection_id", conn.ID).Msg("room session without slug, ignoring")
		conn.Run(nil, nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	room, err := h.rooms.Connect(ctx, slug, token)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			log.Warn().Str("connection_id", conn.ID).Str("slug", slug).Msg("room session for unknown room, ignoring")
		} else {
			log.Error().Err(err).Str("connection_id", conn.ID).Str("slug", slug).Msg("failed to record room session")
		}
		conn.Run(nil, nil)
		return
	}

	h.connectionManager.Register(conn)
	conn.PushJSON(models.ViewFor(room, room.RoleFor(token)))
	conn.Run(h.handleMessage, h.handleClose)

	log.Info().
		Str("connection_id", conn.ID).
		Str("slug", slug).
		Bool("anonymous", token == "").
		Msg("room session established")
}

// handleMessage applies an update request. Anything that is not an
// authorized, well-formed update gets the current public view back.
func (h *WebSocketHandler) handleMessage(c *Connection, message []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var update models.RoomUpdate
	if err := json.Unmarshal(message, &update); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Str("slug", c.Slug).Msg("unparseable room update")
		h.pushPublicView(ctx, c)
		return
	}

	result, err := h.rooms.ApplyUpdate(ctx, c.Slug, c.Token, update)
	switch {
	case errors.Is(err, rooms.ErrUnauthorized):
		log.Debug().Str("connection_id", c.ID).Str("slug", c.Slug).Msg("unauthorized room update")
		h.pushPublicView(ctx, c)
	case errors.Is(err, rooms.ErrRoomNotFound):
		log.Warn().Str("connection_id", c.ID).Str("slug", c.Slug).Msg("room update for unknown room")
	case err != nil:
		log.Error().Err(err).Str("connection_id", c.ID).Str("slug", c.Slug).Msg("failed to apply room update")
	default:
		c.PushJSON(models.ViewFor(result.Room, result.Room.RoleFor(c.Token)))
	}
}

func (h *WebSocketHandler) pushPublicView(ctx context.Context, c *Connection) {
	room, err := h.rooms.GetRoom(ctx, c.Slug)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Str("slug", c.Slug).Msg("failed to load room for public view")
		return
	}
	c.PushJSON(models.PublicView(room))
}

func (h *WebSocketHandler) handleClose(c *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if _, err := h.rooms.Disconnect(ctx, c.Slug, c.Token); err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Str("slug", c.Slug).Msg("failed to record session close")
		return
	}
	log.Info().Str("connection_id", c.ID).Str("slug", c.Slug).Msg("room session closed")
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	writeJSON(w, http.StatusOK, stats)
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/info", h.HandleInfo)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
