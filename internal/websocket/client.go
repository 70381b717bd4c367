// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/tomtom215/campusnet/internal/config"
	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
)

// Settings tune a connection. Zero values fall back to DefaultSettings.
type Settings struct {
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	SendBuffer      int
	EventsPerSecond float64
	EventBurst      int
}

// DefaultSettings returns the connection defaults.
func DefaultSettings() Settings {
	return Settings{
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageSize:  64 * 1024,
		SendBuffer:      256,
		EventsPerSecond: 10,
		EventBurst:      20,
	}
}

// SettingsFromConfig converts the websocket config section.
func SettingsFromConfig(cfg config.WebSocketConfig) Settings {
	return Settings{
		WriteWait:       cfg.WriteWait,
		PongWait:        cfg.PongWait,
		MaxMessageSize:  cfg.MaxMessageSize,
		SendBuffer:      cfg.SendBuffer,
		EventsPerSecond: cfg.EventsPerSecond,
		EventBurst:      cfg.EventBurst,
	}.normalize()
}

func (s Settings) normalize() Settings {
	d := DefaultSettings()
	if s.WriteWait <= 0 {
		s.WriteWait = d.WriteWait
	}
	if s.PongWait <= 0 {
		s.PongWait = d.PongWait
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = d.MaxMessageSize
	}
	if s.SendBuffer <= 0 {
		s.SendBuffer = d.SendBuffer
	}
	if s.EventsPerSecond <= 0 {
		s.EventsPerSecond = d.EventsPerSecond
	}
	if s.EventBurst <= 0 {
		s.EventBurst = d.EventBurst
	}
	return s
}

func (s Settings) pingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

// clientSeq orders clients by connection time so room delivery order is
// stable.
var clientSeq atomic.Uint64

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	id     string
	seq    uint64
	userID string

	hub      *Hub
	router   *Router
	conn     *websocket.Conn
	send     chan []byte
	limiter  *rate.Limiter
	settings Settings

	// guarded by hub.mu
	rooms  map[string]struct{}
	closed bool
}

// NewClient creates a client for an authenticated user.
func NewClient(hub *Hub, router *Router, conn *websocket.Conn, userID string, settings Settings) *Client {
	settings = settings.normalize()
	return &Client{
		id:       uuid.NewString(),
		seq:      clientSeq.Add(1),
		userID:   userID,
		hub:      hub,
		router:   router,
		conn:     conn,
		send:     make(chan []byte, settings.SendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(settings.EventsPerSecond), settings.EventBurst),
		settings: settings,
		rooms:    make(map[string]struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string {
	return c.id
}

// UserID returns the authenticated user.
func (c *Client) UserID() string {
	return c.userID
}

// trySend queues frame without blocking. Must be called with hub.mu held.
func (c *Client) trySend(frame []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// reply sends a frame to this connection only.
func (c *Client) reply(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		logging.Warn().Err(err).Str("event", event).Msg("failed to encode websocket reply")
		return
	}
	frame, err := json.Marshal(models.Frame{Event: event, Data: raw})
	if err != nil {
		return
	}
	c.hub.sendTo(c, frame)
}

// readPump pumps frames from the websocket connection to the router.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("conn_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		c.router.Handle(c, data)
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Str("conn_id", c.id).Msg("failed to write websocket frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}
