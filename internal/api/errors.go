// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/campusnet/internal/chat"
	"github.com/tomtom215/campusnet/internal/logging"
)

// chatErrorStatus maps a chat error kind to its HTTP status and code.
func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, chat.ErrInvalidParticipant):
		return http.StatusBadRequest, ErrCodeInvalidParticipant
	case errors.Is(err, chat.ErrNotMember), errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, chat.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

// writeChatError writes err from the chat service. Internal failures are
// logged and reported without detail.
func writeChatError(rw *ResponseWriter, r *http.Request, err error) {
	status, code := chatErrorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Chat operation failed")
		rw.Error(status, code, http.StatusText(status))
		return
	}

	message := chat.Message(err)
	if message == "" {
		message = fallbackMessage(err)
	}
	logging.Ctx(r.Context()).Debug().Err(err).Int("status", status).Msg("Chat request rejected")
	rw.Error(status, code, message)
}

func fallbackMessage(err error) string {
	for _, kind := range []error{
		chat.ErrValidation,
		chat.ErrInvalidParticipant,
		chat.ErrNotMember,
		chat.ErrForbidden,
		chat.ErrNotFound,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return err.Error()
}
