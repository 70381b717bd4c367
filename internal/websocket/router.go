// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package websocket

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/metrics"
	"github.com/tomtom215/campusnet/internal/models"
)

// MembershipChecker answers whether a user participates in a conversation.
type MembershipChecker interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
}

// RoomPublisher fans an event out to a room on every instance, skipping
// one connection.
type RoomPublisher interface {
	PublishExcept(ctx context.Context, room, event string, payload any, excludeConn string) error
}

// Event results recorded in metrics.
const (
	resultOK        = "ok"
	resultRejected  = "rejected"
	resultThrottled = "throttled"
)

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// RoomPayload is the data of joined and left frames.
type RoomPayload struct {
	Room           string `json:"room"`
	ConversationID string `json:"conversationId,omitempty"`
}

type joinRequest struct {
	UserID string `json:"userId"`
}

type conversationRequest struct {
	ConversationID string `json:"conversationId"`
}

// Router dispatches inbound client frames.
type Router struct {
	hub       *Hub
	members   MembershipChecker
	publisher RoomPublisher
	timeout   time.Duration
}

// NewRouter creates a router. members guards join_conversation and
// publisher relays typing events.
func NewRouter(hub *Hub, members MembershipChecker, publisher RoomPublisher) *Router {
	return &Router{
		hub:       hub,
		members:   members,
		publisher: publisher,
		timeout:   5 * time.Second,
	}
}

// Handle processes one raw frame from c.
func (r *Router) Handle(c *Client, data []byte) {
	if !c.limiter.Allow() {
		metrics.WSEventsReceived.WithLabelValues("any", resultThrottled).Inc()
		c.reply(models.EventError, ErrorPayload{Message: "too many events, slow down"})
		return
	}

	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
		metrics.WSEventsReceived.WithLabelValues("invalid", resultRejected).Inc()
		c.reply(models.EventError, ErrorPayload{Message: "malformed frame"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ctx = logging.ContextWithConnID(logging.ContextWithUserID(ctx, c.userID), c.id)

	var msg string
	switch frame.Event {
	case models.EventJoin:
		msg = r.join(c, frame.Data)
	case models.EventJoinConversation:
		msg = r.joinConversation(ctx, c, frame.Data)
	case models.EventLeaveConversation:
		msg = r.leaveConversation(c, frame.Data)
	case models.EventTypingStart:
		msg = r.typing(ctx, c, frame.Data, models.EventUserTyping)
	case models.EventTypingStop:
		msg = r.typing(ctx, c, frame.Data, models.EventUserStoppedTyping)
	default:
		metrics.WSEventsReceived.WithLabelValues("unknown", resultRejected).Inc()
		c.reply(models.EventError, ErrorPayload{Event: frame.Event, Message: "unknown event"})
		return
	}

	if msg != "" {
		metrics.WSEventsReceived.WithLabelValues(frame.Event, resultRejected).Inc()
		c.reply(models.EventError, ErrorPayload{Event: frame.Event, Message: msg})
		return
	}
	metrics.WSEventsReceived.WithLabelValues(frame.Event, resultOK).Inc()
}

// join subscribes c to the personal room of its authenticated user.
func (r *Router) join(c *Client, data json.RawMessage) string {
	var req joinRequest
	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return "malformed data"
		}
	}
	if req.UserID != "" && req.UserID != c.userID {
		return "cannot join another user's room"
	}
	room := models.UserRoom(c.userID)
	r.hub.Join(room, c)
	c.reply(models.EventJoined, RoomPayload{Room: room})
	return ""
}

func (r *Router) joinConversation(ctx context.Context, c *Client, data json.RawMessage) string {
	convID, msg := conversationID(data)
	if msg != "" {
		return msg
	}
	ok, err := r.members.IsMember(ctx, convID, c.userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("conversation_id", convID).Msg("membership check failed")
		return "could not join conversation"
	}
	if !ok {
		return "not a participant of this conversation"
	}
	room := models.ConversationRoom(convID)
	r.hub.Join(room, c)
	c.reply(models.EventJoined, RoomPayload{Room: room, ConversationID: convID})
	return ""
}

func (r *Router) leaveConversation(c *Client, data json.RawMessage) string {
	convID, msg := conversationID(data)
	if msg != "" {
		return msg
	}
	room := models.ConversationRoom(convID)
	r.hub.Leave(room, c)
	c.reply(models.EventLeft, RoomPayload{Room: room, ConversationID: convID})
	return ""
}

// typing relays a typing signal to the other connections in the room. The
// connection must have joined the room, which proves membership.
func (r *Router) typing(ctx context.Context, c *Client, data json.RawMessage, event string) string {
	convID, msg := conversationID(data)
	if msg != "" {
		return msg
	}
	room := models.ConversationRoom(convID)
	if !r.hub.InRoom(room, c) {
		return "join the conversation before sending typing events"
	}
	payload := models.TypingPayload{ConversationID: convID, UserID: c.userID}
	if err := r.publisher.PublishExcept(ctx, room, event, payload, c.id); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Str("conversation_id", convID).Msg("typing relay failed")
	}
	return ""
}

func conversationID(data json.RawMessage) (string, string) {
	var req conversationRequest
	if len(data) == 0 {
		return "", "conversationId is required"
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return "", "malformed data"
	}
	if req.ConversationID == "" {
		return "", "conversationId is required"
	}
	return req.ConversationID, ""
}
