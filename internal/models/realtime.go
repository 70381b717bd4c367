// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package models

import (
	"strings"

	"github.com/goccy/go-json"
)

// Socket event names. Client-originated events are listed first.
const (
	EventJoin              = "join"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"

	EventJoined              = "joined"
	EventLeft                = "left"
	EventNewMessage          = "new_message"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventConversationUpdated = "conversation_updated"
	EventUserTyping          = "user_typing"
	EventUserStoppedTyping   = "user_stopped_typing"
	EventError               = "error"
)

const (
	userRoomPrefix         = "user:"
	conversationRoomPrefix = "conversation:"
)

// UserRoom names the personal room of a user.
func UserRoom(userID string) string {
	return userRoomPrefix + userID
}

// ConversationRoom names the room of a conversation.
func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}

// ConversationIDFromRoom extracts the conversation id from a room name.
func ConversationIDFromRoom(room string) (string, bool) {
	id, ok := strings.CutPrefix(room, conversationRoomPrefix)
	return id, ok && id != ""
}

// Frame is the JSON shape of every websocket frame in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Envelope is a fan-out event addressed to a room. It is what travels over
// the backplane between instances.
type Envelope struct {
	Room        string          `json:"room"`
	Event       string          `json:"event"`
	Payload     json.RawMessage `json:"payload"`
	Origin      string          `json:"origin"`                // instance id of the publisher
	ExcludeConn string          `json:"excludeConn,omitempty"` // connection on Origin that must not receive it
}

// TypingPayload is carried by typing events in both directions.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
}

// ConversationUpdate is sent to participants' personal rooms when a
// conversation they belong to receives a message.
type ConversationUpdate struct {
	ConversationID string       `json:"conversationId"`
	LastMessage    *LastMessage `json:"lastMessage"`
	UnreadCount    int          `json:"unreadCount"`
}

// MessageDeleted is the payload of message_deleted.
type MessageDeleted struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Seq            uint64 `json:"seq"`
	Content        string `json:"content"`
}
