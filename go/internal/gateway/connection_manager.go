package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

// ConnectionManager tracks the sessions attached to this instance, by room slug
type ConnectionManager struct {
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection is one session: a websocket attached to a room with an optional token
type Connection struct {
	ID      string
	Slug    string
	Token   string // empty for anonymous sessions
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	onMessage func(c *Connection, message []byte)
	onClose   func(c *Connection)

	done      chan struct{}
	closeOnce sync.Once
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage asks the manager to push fresh views of Room to its sessions
type BroadcastMessage struct {
	Slug string
	Room *models.Room
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    15 * time.Second,
		MaxMessageSize:  64 * 1024, // presets travel inline
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is done
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Upgrade upgrades an HTTP request to a websocket session. The session is
// not registered with any room yet.
func (cm *ConnectionManager) Upgrade(w http.ResponseWriter, r *http.Request, slug, token string) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	return &Connection{
		ID:          uuid.New().String(),
		Slug:        slug,
		Token:       token,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		LastPing:    now,
		done:        make(chan struct{}),
	}, nil
}

// Run starts the pumps. onMessage is called for every inbound frame and
// onClose exactly once after the session ends; either may be nil.
func (c *Connection) Run(onMessage func(*Connection, []byte), onClose func(*Connection)) {
	c.onMessage = onMessage
	c.onClose = onClose
	go c.writePump()
	go c.readPump()
}

// Register attaches a connection to its room
func (cm *ConnectionManager) Register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.Slug] == nil {
		cm.roomConnections[conn.Slug] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.Slug][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("slug", conn.Slug).
		Int("total_connections", len(cm.roomConnections[conn.Slug])).
		Msg("connection registered")
}

// unregister removes a connection from its room
func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.roomConnections[conn.Slug]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}
	delete(connections, conn)
	if len(connections) == 0 {
		delete(cm.roomConnections, conn.Slug)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("slug", conn.Slug).
		Msg("connection unregistered")
}

// BroadcastRoom queues fresh views of room for every local session in it
func (cm *ConnectionManager) BroadcastRoom(room *models.Room) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Slug: room.Slug, Room: room}:
	default:
		log.Warn().Str("slug", room.Slug).Msg("broadcast channel full, dropping message")
	}
}

// Connections returns a snapshot of the sessions attached to slug
func (cm *ConnectionManager) Connections(slug string) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]*Connection, 0, len(cm.roomConnections[slug]))
	for conn := range cm.roomConnections[slug] {
		out = append(out, conn)
	}
	return out
}

// handleBroadcast pushes each session the view for the role its token holds now
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	targets := cm.Connections(message.Slug)
	if len(targets) == 0 {
		return
	}

	rendered := make(map[models.Role][]byte)
	for _, conn := range targets {
		role := message.Room.RoleFor(conn.Token)
		data, ok := rendered[role]
		if !ok {
			var err error
			data, err = json.Marshal(models.ViewFor(message.Room, role))
			if err != nil {
				log.Error().Err(err).Str("slug", message.Slug).Msg("failed to marshal room view")
				return
			}
			rendered[role] = data
		}
		conn.Push(data)
	}

	log.Debug().
		Str("slug", message.Slug).
		Int("connections", len(targets)).
		Msg("room views broadcasted")
}

// Push queues data without blocking. A session whose buffer is full is
// too slow to keep up and is closed.
func (c *Connection) Push(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- data:
		return true
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("slug", c.Slug).
			Msg("connection send buffer full, closing connection")
		c.Close()
		return false
	}
}

// PushJSON marshals v and pushes it
func (c *Connection) PushJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal message")
		return false
	}
	return c.Push(data)
}

// Close ends the session. It is safe to call from any goroutine, any number of times.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.Manager.unregister(c)
		c.Conn.Close()
	})
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	roomCounts := make(map[string]int)

	for slug, connections := range cm.roomConnections {
		count := len(connections)
		totalConnections += count
		roomCounts[slug] = count
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads frames until the peer goes away, then runs onClose once
func (c *Connection) readPump() {
	defer func() {
		c.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			return
		}

		if c.onMessage != nil {
			c.onMessage(c, message)
		}
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
