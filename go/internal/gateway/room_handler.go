package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
	"github.com/mcdev12/metronome/go/internal/rooms"
)

// RoomHandler serves the HTTP side of rooms: creation, invitation links and state snapshots
type RoomHandler struct {
	rooms   Rooms
	cookies CookieConfig
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(rooms Rooms, cookies CookieConfig) *RoomHandler {
	return &RoomHandler{
		rooms:   rooms,
		cookies: cookies,
	}
}

// HandleCreateRoom handles POST /api/rooms
func (h *RoomHandler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req rooms.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.rooms.CreateRoom(r.Context(), req)
	if err != nil {
		writeRoomError(w, err, req.Slug)
		return
	}

	h.cookies.Set(w, result.Room.Slug, result.OwnerToken)
	writeJSON(w, http.StatusCreated, models.ViewFor(result.Room, models.RoleOwner))
}

// HandleJoin handles GET /api/rooms/{slug}/join?token=...
// A valid invitation token is stored in the room cookie and the browser is
// sent on to the room page.
func (h *RoomHandler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	_, role, err := h.rooms.Join(r.Context(), slug, token)
	if err != nil {
		writeRoomError(w, err, slug)
		return
	}

	log.Info().Str("slug", slug).Str("role", string(role)).Msg("invitation accepted")
	h.cookies.Set(w, slug, token)
	http.Redirect(w, r, "/"+slug, http.StatusSeeOther)
}

// HandleGetRoomState handles GET /api/rooms/{slug}/state
func (h *RoomHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	room, err := h.rooms.GetRoom(r.Context(), slug)
	if err != nil {
		writeRoomError(w, err, slug)
		return
	}

	token := h.cookies.Token(r, slug)
	writeJSON(w, http.StatusOK, models.ViewFor(room, room.RoleFor(token)))
}

// RegisterRoutes registers room HTTP routes
func (h *RoomHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms", h.HandleCreateRoom)
	mux.HandleFunc("GET /api/rooms/{slug}/join", h.HandleJoin)
	mux.HandleFunc("GET /api/rooms/{slug}/state", h.HandleGetRoomState)
}

func writeRoomError(w http.ResponseWriter, err error, slug string) {
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		http.Error(w, "Room not found", http.StatusNotFound)
	case errors.Is(err, rooms.ErrRoomExists):
		http.Error(w, "Room already exists", http.StatusConflict)
	case errors.Is(err, rooms.ErrInvalidRoom):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, rooms.ErrUnauthorized):
		http.Error(w, "Invalid invitation", http.StatusForbidden)
	default:
		log.Error().Err(err).Str("slug", slug).Msg("room request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
