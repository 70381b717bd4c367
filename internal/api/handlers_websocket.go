// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"net/http"

	"github.com/tomtom215/campusnet/internal/auth"
	"github.com/tomtom215/campusnet/internal/logging"
)

// WebSocket handles GET /ws. The caller is already authenticated; the
// connection is bound to their user id for its whole life.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		NewResponseWriter(w, r).Unauthorized("authentication required")
		return
	}

	client, err := h.gateway.Upgrade(w, r, userID)
	if err != nil {
		// the upgrader has written the HTTP error
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	logging.Ctx(r.Context()).Debug().Str("conn_id", client.ID()).Msg("WebSocket connected")
}
