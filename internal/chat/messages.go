// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/metrics"
	"github.com/tomtom215/campusnet/internal/models"
	"github.com/tomtom215/campusnet/internal/store"
)

// SendInput is a message to append.
type SendInput struct {
	ConversationID string
	SenderID       string
	Content        string
	MessageType    models.MessageType

	// FileKey names an uploaded object; it is resolved through the
	// FileResolver before the message is stored.
	FileKey string
	// File carries already resolved file fields and is used when FileKey
	// is empty.
	File *models.FileMeta

	ReplyTo string
}

// MessageQuery selects a page of messages. Before and After are sequence
// cursors and take precedence over Page.
type MessageQuery struct {
	Page   int
	Limit  int
	Before uint64
	After  uint64
}

// MessagePage is one page of a conversation, oldest to newest.
type MessagePage struct {
	Messages []models.MessageView `json:"messages"`
	Page     int                  `json:"page,omitempty"`
	Limit    int                  `json:"limit"`
	LastSeq  uint64               `json:"lastSeq"`
	HasMore  bool                 `json:"hasMore"`
}

// SendMessage appends a message and applies it to the conversation's
// lastMessage, lastActivity and unread counters in one transaction. An
// archived conversation becomes active again. After commit the message
// is published to the conversation room and a conversation_updated event
// to every other participant's personal room.
func (s *Service) SendMessage(ctx context.Context, in SendInput) (*models.MessageView, error) {
	const op = "send message"
	if err := requireID(op, "conversationId", in.ConversationID); err != nil {
		return nil, err
	}
	if err := requireID(op, "sender", in.SenderID); err != nil {
		return nil, err
	}
	if in.MessageType == "" {
		in.MessageType = models.MessageText
	}
	if !in.MessageType.Valid() {
		return nil, newError(ErrValidation, op, "unsupported message type %q", in.MessageType)
	}

	file, err := s.resolveFile(ctx, op, in)
	if err != nil {
		return nil, err
	}
	content, err := s.validateContent(op, in.Content, file != nil)
	if err != nil {
		return nil, err
	}
	replyTo := strings.TrimSpace(in.ReplyTo)

	// held through publish so this instance emits a conversation's
	// new_message events in seq order
	unlock := s.lockConversation(in.ConversationID)
	defer unlock()

	var (
		conv *models.Conversation
		msg  *models.Message
	)
	err = s.store.Update(ctx, func(tx *store.Txn) error {
		c, err := loadMember(tx, op, in.ConversationID, in.SenderID)
		if err != nil {
			return err
		}
		if replyTo != "" {
			parent, err := tx.Message(replyTo)
			if errors.Is(err, store.ErrNotFound) || (err == nil && parent.ConversationID != c.ID) {
				return newError(ErrValidation, op, "replyTo must reference a message in this conversation")
			}
			if err != nil {
				return err
			}
		}
		if c.Status == models.StatusArchived {
			c.Status = models.StatusActive
		}

		m := &models.Message{
			ID:          uuid.NewString(),
			Sender:      in.SenderID,
			Content:     content,
			MessageType: in.MessageType,
			ReplyTo:     replyTo,
			ReadBy:      []models.ReadMarker{},
			CreatedAt:   s.now(),
		}
		m.AttachFile(file)
		if err := tx.AppendMessage(c, m); err != nil {
			return err
		}
		conv, msg = c, m
		return nil
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	metrics.MessagesSent.WithLabelValues(string(msg.MessageType)).Inc()
	logging.Ctx(ctx).Debug().
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Uint64("seq", msg.Seq).
		Msg("Message sent")

	view := s.messageViews(ctx, []*models.Message{msg})[0]
	s.publish(ctx, models.ConversationRoom(conv.ID), models.EventNewMessage, view)
	for _, p := range conv.Participants {
		if p == msg.Sender {
			continue
		}
		s.publish(ctx, models.UserRoom(p), models.EventConversationUpdated, models.ConversationUpdate{
			ConversationID: conv.ID,
			LastMessage:    conv.LastMessage,
			UnreadCount:    conv.UnreadFor(p),
		})
	}
	return &view, nil
}

func (s *Service) resolveFile(ctx context.Context, op string, in SendInput) (*models.FileMeta, error) {
	key := strings.TrimSpace(in.FileKey)
	if key == "" && in.File == nil {
		if in.MessageType.CarriesFile() {
			return nil, newError(ErrValidation, op, "%s messages need a file", in.MessageType)
		}
		return nil, nil
	}
	if !in.MessageType.CarriesFile() {
		return nil, newError(ErrValidation, op, "%s messages cannot carry a file", in.MessageType)
	}
	if key == "" {
		return in.File, nil
	}
	if s.files == nil {
		return nil, newError(ErrValidation, op, "file attachments are disabled")
	}
	meta, err := s.files.Resolve(ctx, key)
	if err != nil {
		return nil, wrapOp(op, err)
	}
	return meta, nil
}

// GetMessages returns one page of a conversation, oldest to newest within
// the page. Page 1 is the newest page; page n skips the newest
// (n-1)*limit messages. Soft-deleted messages appear as tombstones.
func (s *Service) GetMessages(ctx context.Context, conversationID, userID string, q MessageQuery) (*MessagePage, error) {
	const op = "get messages"
	if err := requireID(op, "conversationId", conversationID); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = s.opts.DefaultPageSize
	}
	limit = min(limit, s.opts.MaxPageSize)

	out := &MessagePage{Limit: limit}
	var msgs []*models.Message
	err := s.store.View(ctx, func(tx *store.Txn) error {
		conv, err := loadMember(tx, op, conversationID, userID)
		if err != nil {
			return err
		}
		out.LastSeq = conv.LastSeq

		page := store.Page{Limit: limit, Before: q.Before, After: q.After}
		if q.Before == 0 && q.After == 0 && q.Page > 1 {
			out.Page = q.Page
			skip := uint64(q.Page-1) * uint64(limit)
			if skip >= conv.LastSeq {
				msgs = []*models.Message{}
				return nil
			}
			page.Before = conv.LastSeq - skip + 1
		} else if q.Before == 0 && q.After == 0 {
			out.Page = 1
		}

		msgs, err = tx.Messages(conv.ID, page)
		return err
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	if len(msgs) > 0 {
		if q.After > 0 && q.Before == 0 {
			out.HasMore = msgs[len(msgs)-1].Seq < out.LastSeq
		} else {
			out.HasMore = msgs[0].Seq > 1
		}
	}
	out.Messages = s.messageViews(ctx, msgs)
	return out, nil
}

// SearchMessages finds live messages containing query, newest first.
func (s *Service) SearchMessages(ctx context.Context, conversationID, userID, query string, limit int) ([]models.MessageView, error) {
	const op = "search messages"
	if err := requireID(op, "conversationId", conversationID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, newError(ErrValidation, op, "search query is required")
	}
	if limit <= 0 || limit > s.opts.SearchLimit {
		limit = s.opts.SearchLimit
	}

	var msgs []*models.Message
	err := s.store.View(ctx, func(tx *store.Txn) error {
		conv, err := loadMember(tx, op, conversationID, userID)
		if err != nil {
			return err
		}
		msgs, err = tx.Search(conv.ID, query, limit)
		return err
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}
	return s.messageViews(ctx, msgs), nil
}

// EditMessage replaces the content of a message. Only its sender may edit
// it, and deleted messages cannot be edited.
func (s *Service) EditMessage(ctx context.Context, messageID, userID, content string) (*models.MessageView, error) {
	const op = "edit message"
	if err := requireID(op, "messageId", messageID); err != nil {
		return nil, err
	}
	content, err := s.validateContent(op, content, false)
	if err != nil {
		return nil, err
	}

	var msg *models.Message
	err = s.store.Update(ctx, func(tx *store.Txn) error {
		m, conv, err := s.loadMessage(tx, op, messageID)
		if err != nil {
			return err
		}
		if !conv.HasParticipant(userID) {
			return newError(ErrNotMember, op, "you are not a participant of this conversation")
		}
		if m.Sender != userID {
			return newError(ErrForbidden, op, "only the sender can edit a message")
		}
		now := s.now()
		m.Content = content
		m.EditedAt = &now
		if err := tx.PutMessage(m); err != nil {
			return err
		}
		if conv.LastMessage != nil && conv.LastMessage.MessageID == m.ID {
			conv.LastMessage.Content = content
			if err := tx.PutConversation(conv); err != nil {
				return err
			}
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	logging.Ctx(ctx).Debug().Str("conversation_id", msg.ConversationID).Str("message_id", msg.ID).Msg("Message edited")
	view := s.messageViews(ctx, []*models.Message{msg})[0]
	s.publish(ctx, models.ConversationRoom(msg.ConversationID), models.EventMessageEdited, view)
	return &view, nil
}

// DeleteMessage soft-deletes a message: its content becomes the tombstone
// text while its position, read markers and replies stay intact. The
// sender may delete their own messages; moderators may delete any.
func (s *Service) DeleteMessage(ctx context.Context, messageID, userID string, moderator bool) (*models.Message, error) {
	const op = "delete message"
	if err := requireID(op, "messageId", messageID); err != nil {
		return nil, err
	}

	var msg *models.Message
	err := s.store.Update(ctx, func(tx *store.Txn) error {
		m, conv, err := s.loadMessage(tx, op, messageID)
		if err != nil {
			return err
		}
		if !moderator {
			if !conv.HasParticipant(userID) {
				return newError(ErrNotMember, op, "you are not a participant of this conversation")
			}
			if m.Sender != userID {
				return newError(ErrForbidden, op, "only the sender can delete a message")
			}
		}
		m.Tombstone(s.opts.TombstoneText, s.now())
		if err := tx.PutMessage(m); err != nil {
			return err
		}
		if conv.LastMessage != nil && conv.LastMessage.MessageID == m.ID {
			conv.LastMessage.Content = m.Content
			if err := tx.PutConversation(conv); err != nil {
				return err
			}
		}
		msg = m
		return nil
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	logging.Ctx(ctx).Info().
		Str("conversation_id", msg.ConversationID).
		Str("message_id", msg.ID).
		Bool("moderator", moderator && msg.Sender != userID).
		Msg("Message deleted")
	s.publish(ctx, models.ConversationRoom(msg.ConversationID), models.EventMessageDeleted, models.MessageDeleted{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Seq:            msg.Seq,
		Content:        msg.Content,
	})
	return msg, nil
}

// MarkRead stamps userID's read marker on every message from others up to
// the conversation's newest message and resets userID's unread counter.
// Long unread runs are stamped in batches of store.MaxReadMarkersPerTxn;
// the counter is reset with the last batch. Calling it with nothing unread
// changes nothing. Read state is not published; other participants see it
// on fetch.
func (s *Service) MarkRead(ctx context.Context, conversationID, userID string) error {
	const op = "mark read"
	if err := requireID(op, "conversationId", conversationID); err != nil {
		return err
	}

	unlock := s.lockConversation(conversationID)
	defer unlock()

	var (
		upTo    uint64
		batches int
		done    bool
	)
	for ; !done; batches++ {
		err := s.store.Update(ctx, func(tx *store.Txn) error {
			conv, err := loadMember(tx, op, conversationID, userID)
			if err != nil {
				return err
			}
			if batches == 0 {
				if conv.UnreadFor(userID) == 0 {
					done = true
					return nil
				}
				upTo = conv.LastSeq
			}
			done, err = tx.MarkRead(conv, userID, upTo, s.now(), store.MaxReadMarkersPerTxn)
			return err
		})
		if err != nil {
			return wrapOp(op, err)
		}
	}
	if upTo > 0 {
		logging.Ctx(ctx).Debug().
			Str("conversation_id", conversationID).
			Uint64("up_to", upTo).
			Int("batches", batches).
			Msg("Conversation marked read")
	}
	return nil
}

// loadMessage loads a live message and its live conversation.
func (s *Service) loadMessage(tx *store.Txn, op, messageID string) (*models.Message, *models.Conversation, error) {
	m, err := tx.Message(messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, newError(ErrNotFound, op, "message not found")
	}
	if err != nil {
		return nil, nil, err
	}
	if m.IsDeleted() {
		return nil, nil, newError(ErrNotFound, op, "message not found")
	}
	conv, err := tx.Conversation(m.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, newError(ErrNotFound, op, "conversation not found")
	}
	if err != nil {
		return nil, nil, err
	}
	if conv.Status == models.StatusDeleted {
		return nil, nil, newError(ErrNotFound, op, "conversation not found")
	}
	return m, conv, nil
}
