// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"context"
	"time"

	"github.com/tomtom215/campusnet/internal/authz"
	"github.com/tomtom215/campusnet/internal/chat"
	"github.com/tomtom215/campusnet/internal/websocket"
)

// HealthCheck is a named readiness probe, such as the store or the
// backplane.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the chat REST API and the websocket endpoint.
type Handler struct {
	chat      *chat.Service
	directory *chat.Directory
	authz     *authz.Middleware
	gateway   *websocket.Gateway
	checks    []HealthCheck
	version   string
	startTime time.Time
}

// HandlerDeps lists the collaborators of a Handler.
type HandlerDeps struct {
	Chat      *chat.Service
	Directory *chat.Directory
	Authz     *authz.Middleware
	Gateway   *websocket.Gateway
	Checks    []HealthCheck
	Version   string
}

// NewHandler creates a new API handler.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{
		chat:      deps.Chat,
		directory: deps.Directory,
		authz:     deps.Authz,
		gateway:   deps.Gateway,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}
}
