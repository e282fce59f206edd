package clocksync

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const defaultPingTimeout = 5 * time.Second

// WebSocketTransport pings the /time echo endpoint over a websocket.
type WebSocketTransport struct {
	conn    *websocket.Conn
	timeout time.Duration
}

// DialWebSocket returns a Dialer for the echo endpoint at url
// (ws://host/time). header may carry cookies.
func DialWebSocket(url string, header http.Header) Dialer {
	return func(ctx context.Context) (Transport, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return &WebSocketTransport{conn: conn, timeout: defaultPingTimeout}, nil
	}
}

// Ping sends sendTime as a text frame and reads one echo.
func (t *WebSocketTransport) Ping(ctx context.Context, sendTime float64) (Echo, error) {
	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	_ = t.conn.SetWriteDeadline(deadline)
	frame := strconv.FormatFloat(sendTime, 'f', -1, 64)
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return Echo{}, fmt.Errorf("write ping: %w", err)
	}

	_ = t.conn.SetReadDeadline(deadline)
	var echo Echo
	if err := t.conn.ReadJSON(&echo); err != nil {
		return Echo{}, fmt.Errorf("read echo: %w", err)
	}
	return echo, nil
}

// Close closes the underlying websocket
func (t *WebSocketTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
