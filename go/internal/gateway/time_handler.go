package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

// TimeEcho is the reply to a clock-sync ping, in server milliseconds.
// Offset is the server receipt time minus the client's send time.
type TimeEcho struct {
	Offset float64 `json:"offset"`
	Time   float64 `json:"time"`
}

// TimeHandler answers clock-sync pings on a dedicated websocket
type TimeHandler struct {
	upgrader websocket.Upgrader
	clock    clockwork.Clock
	config   ConnectionConfig
}

// NewTimeHandler creates a new time echo handler
func NewTimeHandler(config ConnectionConfig, clock clockwork.Clock) *TimeHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TimeHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		clock:  clock,
		config: config,
	}
}

// Echo builds the reply for a ping sent at clientTime.
func (h *TimeHandler) Echo(clientTime float64) TimeEcho {
	now := models.Millis(h.clock.Now())
	return TimeEcho{Offset: now - clientTime, Time: now}
}

// HandleTime replies to every numeric frame with a TimeEcho. Frames that are
// not a number are logged and skipped.
func (h *TimeHandler) HandleTime(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade time sync connection")
		return
	}
	defer conn.Close()

	conn.SetReadLimit(h.config.MaxMessageSize)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("time sync connection closed")
			}
			return
		}

		clientTime, err := strconv.ParseFloat(strings.TrimSpace(string(message)), 64)
		if err != nil {
			log.Debug().Err(err).Msg("ignoring non-numeric time sync ping")
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
		if err := conn.WriteJSON(h.Echo(clientTime)); err != nil {
			log.Debug().Err(err).Msg("failed to write time echo")
			return
		}
	}
}

// RegisterRoutes registers the time echo route
func (h *TimeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/time", h.HandleTime)
}
