package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/metronome/go/internal/models"
)

const writeWait = 10 * time.Second

// Session follows one room over the info websocket.
type Session struct {
	Slug string

	conn  *websocket.Conn
	views chan *models.RoomView

	writeMu   sync.Mutex
	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

// Connect opens the info channel for slug with the held token.
func (c *Client) Connect(ctx context.Context, slug string) (*Session, error) {
	u := c.wsURL("/info", url.Values{"slug": {slug}})
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, c.header(slug))
	if err != nil {
		return nil, fmt.Errorf("dial room %s: %w", slug, err)
	}

	s := &Session{
		Slug:    slug,
		conn:    conn,
		views:   make(chan *models.RoomView, 16),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Views delivers every view the server pushes. It is closed when the
// session ends.
func (s *Session) Views() <-chan *models.RoomView {
	return s.views
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send asks the server to apply update. The server answers with a new view
// or, when the update is not allowed, with the public view.
func (s *Session) Send(update models.RoomUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send update: %w", err)
	}
	return nil
}

// Close ends the session
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}

func (s *Session) readLoop() {
	defer func() {
		close(s.views)
		close(s.done)
		_ = s.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("slug", s.Slug).Msg("room session closed unexpectedly")
			}
			return
		}

		var view models.RoomView
		if err := json.Unmarshal(data, &view); err != nil {
			log.Warn().Err(err).Str("slug", s.Slug).Msg("ignoring malformed room view")
			continue
		}
		select {
		case s.views <- &view:
		case <-s.closing:
			return
		}
	}
}
