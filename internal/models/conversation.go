// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package models holds the persisted and wire types of the messaging service.
package models

import (
	"slices"
	"time"
)

// ConversationStatus is the soft lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusDeleted  ConversationStatus = "deleted"
)

// Valid reports whether s is a known status.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusActive, StatusArchived, StatusDeleted:
		return true
	}
	return false
}

// LastMessage is the denormalized snapshot of the newest message, kept so the
// conversation list renders without reading the message keyspace.
type LastMessage struct {
	MessageID   string      `json:"messageId"`
	Seq         uint64      `json:"seq"`
	Sender      string      `json:"sender"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"messageType"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Conversation is a durable thread between a fixed set of participants.
type Conversation struct {
	ID           string             `json:"id"`
	Participants []string           `json:"participants"` // creation order; exactly 2 when !IsGroup
	IsGroup      bool               `json:"isGroup"`
	GroupName    string             `json:"groupName,omitempty"`
	GroupAvatar  string             `json:"groupAvatar,omitempty"`
	GroupAdmin   string             `json:"groupAdmin,omitempty"`
	LastMessage  *LastMessage       `json:"lastMessage,omitempty"`
	LastActivity time.Time          `json:"lastActivity"`
	UnreadCounts map[string]int     `json:"unreadCounts"`
	ReadUpTo     map[string]uint64  `json:"readUpTo,omitempty"` // per user, every earlier message carries their read marker
	Status       ConversationStatus `json:"status"`
	LastSeq      uint64             `json:"lastSeq"` // ordering key of the newest message
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Peer returns the other participant of a direct conversation.
func (c *Conversation) Peer(userID string) string {
	if c.IsGroup {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// UnreadFor returns the unread counter of userID.
func (c *Conversation) UnreadFor(userID string) int {
	return c.UnreadCounts[userID]
}

// RecordMessage applies a newly appended message to the denormalized fields:
// lastMessage, lastActivity and the unread counter of every participant
// other than the sender.
func (c *Conversation) RecordMessage(m *Message) {
	c.LastSeq = m.Seq
	c.LastMessage = &LastMessage{
		MessageID:   m.ID,
		Seq:         m.Seq,
		Sender:      m.Sender,
		Content:     m.Content,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	}
	c.LastActivity = m.CreatedAt
	c.UpdatedAt = m.CreatedAt
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int, len(c.Participants))
	}
	for _, p := range c.Participants {
		if p != m.Sender {
			c.UnreadCounts[p]++
		}
	}
}

// ConversationView is a conversation as presented to one participant.
type ConversationView struct {
	Conversation
	Profiles    []UserProfile `json:"participantProfiles,omitempty"`
	UnreadCount int           `json:"unreadCount"`
}

// DirectPairKey returns the unordered key of a two-party conversation.
func DirectPairKey(a, b string) (lo, hi string) {
	if a < b {
		return a, b
	}
	return b, a
}
