// Package realtime is a WebSocket client for OpenAI's realtime voice
// API. A Client dials sessions; a Session carries one full-duplex
// conversation with the model.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// DefaultURL is the realtime WebSocket endpoint.
	DefaultURL = "wss://api.openai.com/v1/realtime"

	// DefaultModel is used when Dial is not given a model.
	DefaultModel = "gpt-4o-realtime-preview"
)

// Client dials realtime sessions against one API endpoint.
type Client struct {
	apiKey           string
	url              string
	model            string
	handshakeTimeout time.Duration
}

// Option configures the Client.
type Option func(*Client)

// WithURL overrides the WebSocket endpoint.
func WithURL(url string) Option {
	return func(c *Client) { c.url = url }
}

// WithModel overrides the model the session connects to.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) { c.handshakeTimeout = d }
}

// NewClient creates a realtime client. The API key is required.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:           apiKey,
		url:              DefaultURL,
		model:            DefaultModel,
		handshakeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens a session and starts its background reader.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	url := fmt.Sprintf("%s?model=%s", c.url, c.model)

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}
	headers.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("dial: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	s := &Session{
		conn:     conn,
		closeCh:  make(chan struct{}),
		eventsCh: make(chan eventOrError, 100),
	}
	go s.readLoop()
	return s, nil
}

// Error is an API-level failure, either from the handshake or from an
// error event on the wire.
type Error struct {
	Type       string `json:"type,omitzero"`
	Code       string `json:"code,omitzero"`
	Message    string `json:"message,omitzero"`
	Param      string `json:"param,omitzero"`
	EventID    string `json:"event_id,omitzero"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Code, e.Message)
	}
	if e.Type != "" {
		return fmt.Sprintf("realtime: %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("realtime: %s", e.Message)
}
