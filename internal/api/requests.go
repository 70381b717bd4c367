// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/campusnet/internal/validation"
)

// maxBodyBytes bounds request bodies. Message content is limited far
// below this by the chat service.
const maxBodyBytes = 1 << 20

// StartConversationRequest is the body of POST /chat/start.
type StartConversationRequest struct {
	UserID string `json:"userId" validate:"required,entityid"`
}

// CreateGroupRequest is the body of POST /chat/groups.
type CreateGroupRequest struct {
	Name           string   `json:"name" validate:"required,max=100"`
	ParticipantIDs []string `json:"participantIds" validate:"required,min=1,unique,dive,entityid"`
	Avatar         string   `json:"avatar,omitempty" validate:"omitempty,url"`
}

// AddParticipantRequest is the body of POST /chat/{conversationId}/participants.
type AddParticipantRequest struct {
	UserID string `json:"userId" validate:"required,entityid"`
}

// SendMessageRequest is the body of POST /chat/{conversationId}/messages.
// Content length is checked by the chat service, which counts characters
// rather than bytes.
type SendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType,omitempty" validate:"omitempty,oneof=text image file"`
	FileKey     string `json:"fileKey,omitempty" validate:"omitempty,max=1024"`
	ReplyTo     string `json:"replyTo,omitempty" validate:"omitempty,entityid"`
}

// EditMessageRequest is the body of PATCH /chat/messages/{messageId}.
type EditMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// SyncUserRequest is the body of PUT /users/{userId}, sent by the
// identity service whenever a profile changes.
type SyncUserRequest struct {
	DisplayName string `json:"displayName" validate:"required,max=200"`
	AvatarURL   string `json:"avatarUrl,omitempty" validate:"omitempty,url"`
	Approved    bool   `json:"approved"`

	// UpdatedAt orders concurrent pushes; zero means now.
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// errEmptyBody is returned by decodeJSON for a missing body.
var errEmptyBody = errors.New("request body is required")

// decodeJSON reads a single JSON object from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// bindJSON decodes and validates a request body. It writes the 400
// response itself and reports false when the request must stop.
func bindJSON(rw *ResponseWriter, w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		rw.Error(http.StatusBadRequest, ErrCodeValidation, err.Error())
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		rw.ValidationError(verr)
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

// queryUint parses an optional sequence cursor.
func queryUint(r *http.Request, name string) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a message sequence number", name)
	}
	return v, nil
}

// queryBool parses an optional boolean query parameter.
func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false", name)
	}
	return v, nil
}
