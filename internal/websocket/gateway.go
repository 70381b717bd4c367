// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package websocket

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/campusnet/internal/logging"
)

// Gateway upgrades authenticated HTTP requests into hub clients.
type Gateway struct {
	hub            *Hub
	router         *Router
	settings       Settings
	allowedOrigins []string
}

// NewGateway creates a gateway. An empty allowedOrigins list accepts any
// origin, which is only meant for development.
func NewGateway(hub *Hub, router *Router, settings Settings, allowedOrigins []string) *Gateway {
	return &Gateway{
		hub:            hub,
		router:         router,
		settings:       settings.normalize(),
		allowedOrigins: allowedOrigins,
	}
}

func (g *Gateway) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      g.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkOrigin validates websocket connection origins. Requests without an
// Origin header come from non-browser clients and carry a token, so they
// are accepted.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected: origin not allowed")
	return false
}

// Upgrade completes the handshake for userID and starts the client pumps.
// On failure the upgrader has already written an HTTP error.
func (g *Gateway) Upgrade(w http.ResponseWriter, r *http.Request, userID string) (*Client, error) {
	if userID == "" {
		return nil, fmt.Errorf("websocket upgrade without user")
	}
	upgrader := g.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}

	client := NewClient(g.hub, g.router, conn, userID, g.settings)
	g.hub.Register(client)
	client.Start()
	return client, nil
}
