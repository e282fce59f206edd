// Package client talks to a metronome server: it creates rooms over HTTP,
// synchronizes the clock and follows a room over the info websocket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/metronome/go/internal/clocksync"
	"github.com/mcdev12/metronome/go/internal/models"
)

// ErrRequestFailed wraps non-success HTTP responses.
var ErrRequestFailed = errors.New("metronome request failed")

// Config for a client
type Config struct {
	ServerURL    string // http(s)://host:port
	CookiePrefix string
	Sync         clocksync.Config
}

// DefaultConfig returns a client configuration for a local server
func DefaultConfig() Config {
	return Config{
		ServerURL:    "http://localhost:8080",
		CookiePrefix: "metronome-",
		Sync:         clocksync.DefaultConfig(),
	}
}

// Client holds per-room tokens the way a browser holds cookies.
type Client struct {
	config Config
	http   *http.Client
	clock  clockwork.Clock
	tokens map[string]string
}

// New creates a client
func New(config Config, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		config: config,
		http: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		clock:  clock,
		tokens: map[string]string{},
	}
}

// SetToken stores the token used for slug.
func (c *Client) SetToken(slug, token string) {
	if token == "" {
		delete(c.tokens, slug)
		return
	}
	c.tokens[slug] = token
}

// Token returns the token held for slug.
func (c *Client) Token(slug string) string {
	return c.tokens[slug]
}

func (c *Client) cookieName(slug string) string {
	return c.config.CookiePrefix + slug
}

func (c *Client) header(slug string) http.Header {
	header := http.Header{}
	if token := c.tokens[slug]; token != "" {
		cookie := &http.Cookie{Name: c.cookieName(slug), Value: token}
		header.Set("Cookie", cookie.String())
	}
	return header
}

func (c *Client) wsURL(path string, query url.Values) string {
	base := strings.TrimSuffix(c.config.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// CreateRoom creates a room and keeps the owner token from the response cookie.
func (c *Client) CreateRoom(ctx context.Context, slug, title, ownerEmail string) (*models.RoomView, error) {
	body, err := json.Marshal(map[string]string{"slug": slug, "title": title, "ownerEmail": ownerEmail})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.ServerURL+"/api/rooms", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError("create room", resp)
	}

	var view models.RoomView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode room view: %w", err)
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == c.cookieName(view.Slug) {
			c.SetToken(view.Slug, cookie.Value)
		}
	}
	return &view, nil
}

// Join redeems an invitation token for slug and keeps it.
func (c *Client) Join(ctx context.Context, slug, token string) error {
	u := fmt.Sprintf("%s/api/rooms/%s/join?%s", c.config.ServerURL, url.PathEscape(slug), url.Values{"token": {token}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		return statusError("join room", resp)
	}
	c.SetToken(slug, token)
	return nil
}

// State fetches the room view for the held token.
func (c *Client) State(ctx context.Context, slug string) (*models.RoomView, error) {
	u := fmt.Sprintf("%s/api/rooms/%s/state", c.config.ServerURL, url.PathEscape(slug))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.header(slug) {
		req.Header[k] = v
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("room state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("room state", resp)
	}
	var view models.RoomView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode room view: %w", err)
	}
	return &view, nil
}

// Synchronize estimates the server clock offset over the time echo endpoint.
// The returned estimator is the local clock the offset applies to.
func (c *Client) Synchronize(ctx context.Context) (*clocksync.Estimator, float64, error) {
	estimator := clocksync.NewEstimator(clocksync.DialWebSocket(c.wsURL("/time", nil), nil), c.clock, c.config.Sync)
	offset, err := estimator.Synchronize(ctx)
	if err != nil {
		return nil, 0, err
	}
	return estimator, offset, nil
}

func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: %s: %d %s", ErrRequestFailed, op, resp.StatusCode, strings.TrimSpace(string(msg)))
}
