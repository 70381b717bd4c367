// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
	"github.com/tomtom215/campusnet/internal/validation"
)

// SyncUserResponse reports whether a pushed profile replaced the stored
// one. Revisions older than the stored profile are not applied.
type SyncUserResponse struct {
	Profile *models.UserProfile `json:"profile"`
	Applied bool                `json:"applied"`
}

type userPath struct {
	UserID string `json:"userId" validate:"required,entityid"`
}

// SyncUser handles PUT /users/{userId}. The identity service pushes
// profile changes here, including approval, so conversations can be
// checked without calling it on the request path.
func (h *Handler) SyncUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	path := userPath{UserID: chi.URLParam(r, "userId")}
	if verr := validation.ValidateStruct(&path); verr != nil {
		rw.ValidationError(verr)
		return
	}
	var req SyncUserRequest
	if !bindJSON(rw, w, r, &req) {
		return
	}

	profile := &models.UserProfile{
		ID:          path.UserID,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Approved:    req.Approved,
		UpdatedAt:   req.UpdatedAt.UTC(),
	}
	applied, err := h.directory.Upsert(r.Context(), profile)
	if err != nil {
		writeChatError(rw, r, err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("target_user", path.UserID).
		Bool("approved", req.Approved).
		Bool("applied", applied).
		Msg("Profile sync received")

	rw.Success(SyncUserResponse{Profile: profile, Applied: applied})
}
