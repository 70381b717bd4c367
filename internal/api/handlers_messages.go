// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/campusnet/internal/auth"
	"github.com/tomtom215/campusnet/internal/authz"
	"github.com/tomtom215/campusnet/internal/chat"
	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
)

// GetMessages handles GET /chat/{conversationId}/messages?page&limit&before&after.
// Messages are returned oldest to newest; page 1 is the most recent page.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var q chat.MessageQuery
	var err error
	if q.Page, err = queryInt(r, "page", 1); err == nil {
		if q.Limit, err = queryInt(r, "limit", 0); err == nil {
			if q.Before, err = queryUint(r, "before"); err == nil {
				q.After, err = queryUint(r, "after")
			}
		}
	}
	if err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	page, err := h.chat.GetMessages(r.Context(), chi.URLParam(r, "conversationId"), auth.UserIDFromContext(r.Context()), q)
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(page)
}

// SendMessage handles POST /chat/{conversationId}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req SendMessageRequest
	if !bindJSON(rw, w, r, &req) {
		return
	}

	msgType := models.MessageType(req.MessageType)
	if msgType == "" {
		msgType = models.MessageText
	}

	view, err := h.chat.SendMessage(r.Context(), chat.SendInput{
		ConversationID: chi.URLParam(r, "conversationId"),
		SenderID:       auth.UserIDFromContext(r.Context()),
		Content:        req.Content,
		MessageType:    msgType,
		FileKey:        req.FileKey,
		ReplyTo:        req.ReplyTo,
	})
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Created(view)
}

// SearchMessages handles GET /chat/{conversationId}/messages/search?q&limit.
func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		rw.Error(http.StatusBadRequest, ErrCodeValidation, "q is required")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	results, err := h.chat.SearchMessages(r.Context(), chi.URLParam(r, "conversationId"), auth.UserIDFromContext(r.Context()), query, limit)
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(results)
}

// EditMessage handles PATCH /chat/messages/{messageId}.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	var req EditMessageRequest
	if !bindJSON(rw, w, r, &req) {
		return
	}

	view, err := h.chat.EditMessage(r.Context(), chi.URLParam(r, "messageId"), auth.UserIDFromContext(r.Context()), req.Content)
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(view)
}

// DeleteMessage handles DELETE /chat/messages/{messageId}. Senders may
// delete their own messages; roles with the moderate permission may
// delete any message.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	moderator := false
	if h.authz != nil {
		allowed, err := h.authz.Allowed(r.Context(), authz.ObjectMessages, authz.ActionModerate)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Moderation check failed, treating caller as sender")
		}
		moderator = allowed
	}

	msg, err := h.chat.DeleteMessage(r.Context(), chi.URLParam(r, "messageId"), auth.UserIDFromContext(r.Context()), moderator)
	if err != nil {
		writeChatError(rw, r, err)
		return
	}
	rw.Success(msg)
}
