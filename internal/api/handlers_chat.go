// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/campusnet/internal/auth"
	"github.com/tomtom215/campusnet/internal/chat"
	"github.com/tomtom215/campusnet/internal/models"
)

// ListConversations handles GET /chat?page&limit&includeArchived.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	opts := h.chat.Options()

	page, err := queryInt(r, "page", 1)
	if err == nil && page == 0 {
		page = 1
	}
	var limit int
	if err == nil {
		limit, err = queryInt(r, "limit", opts.DefaultPageSize)
	}
	var includeArchived bool
	if err == nil {
		includeArchived, err = queryBool(r, "includeArchived")
	}
	if err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if limit == 0 {
		limit = opts.DefaultPageSize
	}
	limit = min(limit, opts.MaxPageSize)
	offset := (page - 1) * limit

	views, total, err := h.chat.ListConversations(r.Context(), auth.UserIDFromContext(r.Context()), chat.ListOptions{
		Limit:           limit,
		Offset:          offset,
		IncludeArchived: includeArchived,
	})
	if err != nil {
		writeChatError(rw, r, err)
		return
	}

	rw.SuccessWithPagination(views, &PaginationMeta{
		Total:   total,
		Count:   len(views),
		Page:    page,
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+len(views) < total,
	})
}

// StartConversation handles POST /chat/start. It returns the existing
// direct conversation with the other user or creates it.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req StartConversationRequest
	if !bindJSON(rw, w, r, &req) {
		return
	}

	view, err := h.chat.StartOrGetConversation(r.Context(), auth.UserIDFromContext(r.Context()), req.UserID)
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(view)
}

// CreateGroup handles POST /chat/groups.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req CreateGroupRequest
	if !bindJSON(rw, w, r, &req) {
		return
	}

	view, err := h.chat.CreateGroup(r.Context(), auth.UserIDFromContext(r.Context()), chat.GroupInput{
		Name:         req.Name,
		Avatar:       req.Avatar,
		Participants: req.ParticipantIDs,
	})
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Created(view)
}

// AddParticipant handles POST /chat/{conversationId}/participants.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req AddParticipantRequest
	if !bindJSON(rw, w, r, &req) {
		return
	}

	view, err := h.chat.AddParticipant(r.Context(), chi.URLParam(r, "conversationId"), auth.UserIDFromContext(r.Context()), req.UserID)
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(view)
}

// GetConversation handles GET /chat/{conversationId}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	view, err := h.chat.GetConversation(r.Context(), chi.URLParam(r, "conversationId"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(view)
}

// ArchiveConversation handles PUT /chat/{conversationId}/archive.
func (h *Handler) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.chat.Archive)
}

// UnarchiveConversation handles PUT /chat/{conversationId}/unarchive.
func (h *Handler) UnarchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.chat.Unarchive)
}

// DeleteConversation handles DELETE /chat/{conversationId}. The
// conversation is hidden, not erased; starting it again restores it.
func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, h.chat.SoftDelete)
}

type statusChange func(ctx context.Context, conversationID, userID string) (*models.ConversationView, error)

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request, change statusChange) {
	rw := NewResponseWriter(w, r)
	view, err := change(r.Context(), chi.URLParam(r, "conversationId"), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(view)
}

// MarkRead handles PUT /chat/{conversationId}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	conversationID := chi.URLParam(r, "conversationId")
	if err := h.chat.MarkRead(r.Context(), conversationID, auth.UserIDFromContext(r.Context())); err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(map[string]interface{}{
		"conversationId": conversationID,
		"unreadCount":    0,
	})
}

// UnreadCount handles GET /chat/unread/count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	summary, err := h.chat.UnreadCount(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(summary)
}
