// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package models

import (
	"strings"
	"time"
)

// MessageType discriminates message payloads.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystem:
		return true
	}
	return false
}

// CarriesFile reports whether messages of this type reference an upload.
func (t MessageType) CarriesFile() bool {
	return t == MessageImage || t == MessageFile
}

// ReadMarker records that a user has read a message.
type ReadMarker struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// FileMeta describes a resolved upload attached to a message.
type FileMeta struct {
	URL         string `json:"fileUrl"`
	Name        string `json:"fileName"`
	Size        int64  `json:"fileSize"`
	ContentType string `json:"contentType,omitempty"`
}

// Message is one entry of a conversation. Sender, ConversationID, Seq and
// CreatedAt never change after append.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Seq            uint64       `json:"seq"`
	Sender         string       `json:"sender"`
	Content        string       `json:"content"`
	MessageType    MessageType  `json:"messageType"`
	FileURL        string       `json:"fileUrl,omitempty"`
	FileName       string       `json:"fileName,omitempty"`
	FileSize       int64        `json:"fileSize,omitempty"`
	ReadBy         []ReadMarker `json:"readBy"`
	ReplyTo        string       `json:"replyTo,omitempty"`
	EditedAt       *time.Time   `json:"editedAt,omitempty"`
	DeletedAt      *time.Time   `json:"deletedAt,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// IsDeleted reports whether the message has been tombstoned.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// ReadByUser reports whether userID has a read marker on the message.
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// MarkReadBy appends a read marker for userID unless userID is the sender or
// already has one. It reports whether the message changed.
func (m *Message) MarkReadBy(userID string, at time.Time) bool {
	if m.Sender == userID || m.ReadByUser(userID) {
		return false
	}
	m.ReadBy = append(m.ReadBy, ReadMarker{UserID: userID, ReadAt: at})
	return true
}

// AttachFile copies resolved upload metadata onto the message.
func (m *Message) AttachFile(f *FileMeta) {
	if f == nil {
		return
	}
	m.FileURL = f.URL
	m.FileName = f.Name
	m.FileSize = f.Size
}

// Tombstone replaces the content and file fields with placeholder text and
// stamps DeletedAt. ReadBy, Seq and ReplyTo are kept.
func (m *Message) Tombstone(text string, at time.Time) {
	m.Content = text
	m.FileURL = ""
	m.FileName = ""
	m.FileSize = 0
	m.DeletedAt = &at
}

// Matches reports a case-insensitive substring match on live content.
func (m *Message) Matches(lowerQuery string) bool {
	if m.IsDeleted() || lowerQuery == "" {
		return false
	}
	return strings.Contains(strings.ToLower(m.Content), lowerQuery)
}

// MessageView is a message with the sender's display fields resolved.
type MessageView struct {
	Message
	SenderProfile *UserProfile `json:"senderProfile,omitempty"`
}
