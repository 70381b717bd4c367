// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/campusnet/internal/models"
)

// MaxReadMarkersPerTxn caps how many messages one MarkRead batch stamps,
// keeping the transaction under Badger's size limit for long unread runs.
const MaxReadMarkersPerTxn = 1000

// Page selects a window of messages by sequence cursor. At most one of
// Before and After is honoured; Before wins when both are set.
type Page struct {
	Limit  int
	Before uint64 // newest Limit messages with seq < Before
	After  uint64 // oldest Limit messages with seq > After
}

// AppendMessage assigns m the next sequence number of conv, writes it and
// applies it to conv's lastMessage, lastActivity and unread counters. conv
// is written in the same transaction, so readers see both or neither.
func (t *Txn) AppendMessage(conv *models.Conversation, m *models.Message) error {
	if err := t.requireUpdate(); err != nil {
		return err
	}
	if m.ID == "" {
		return fmt.Errorf("message id is required")
	}

	m.ConversationID = conv.ID
	m.Seq = conv.LastSeq + 1
	if m.ReadBy == nil {
		m.ReadBy = []models.ReadMarker{}
	}

	key := messageKey(conv.ID, m.Seq)
	if err := t.setJSON(key, m); err != nil {
		return err
	}
	if err := t.txn.Set(messageIDKey(m.ID), key); err != nil {
		return fmt.Errorf("set message index: %w", err)
	}

	conv.RecordMessage(m)
	return t.PutConversation(conv)
}

// Message loads a message by id.
func (t *Txn) Message(id string) (*models.Message, error) {
	key, err := t.getString(messageIDKey(id))
	if err != nil {
		return nil, err
	}
	var m models.Message
	if err := t.getJSON([]byte(key), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PutMessage overwrites an existing message at its position.
func (t *Txn) PutMessage(m *models.Message) error {
	if err := t.requireUpdate(); err != nil {
		return err
	}
	if m.Seq == 0 || m.ConversationID == "" {
		return fmt.Errorf("message %s has no position", m.ID)
	}
	return t.setJSON(messageKey(m.ConversationID, m.Seq), m)
}

// Messages returns one page of a conversation, oldest to newest.
// Soft-deleted messages are returned as tombstones in their position.
func (t *Txn) Messages(conversationID string, p Page) ([]*models.Message, error) {
	if p.Limit <= 0 {
		return []*models.Message{}, nil
	}

	prefix := messagePrefix(conversationID)

	if p.Before == 0 && p.After > 0 {
		out := make([]*models.Message, 0, p.Limit)
		err := t.scan(prefix, messageKey(conversationID, p.After+1), false, func(m *models.Message) bool {
			out = append(out, m)
			return len(out) < p.Limit
		})
		return out, err
	}

	var seek []byte
	switch {
	case p.Before == 1:
		return []*models.Message{}, nil
	case p.Before > 1:
		seek = messageKey(conversationID, p.Before-1)
	default:
		// '~' sorts after every digit, so a reverse seek starts at the newest key
		seek = append(slices.Clone(prefix), '~')
	}

	out := make([]*models.Message, 0, p.Limit)
	err := t.scan(prefix, seek, true, func(m *models.Message) bool {
		out = append(out, m)
		return len(out) < p.Limit
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// Search returns up to limit live messages whose content contains query,
// case-insensitively, newest first.
func (t *Txn) Search(conversationID, query string, limit int) ([]*models.Message, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	out := []*models.Message{}
	if q == "" || limit <= 0 {
		return out, nil
	}
	prefix := messagePrefix(conversationID)
	err := t.scan(prefix, append(slices.Clone(prefix), '~'), true, func(m *models.Message) bool {
		if m.Matches(q) {
			out = append(out, m)
		}
		return len(out) < limit
	})
	return out, err
}

// MarkRead stamps userID's read marker on up to limit unmarked messages
// from others with seq <= upTo, resuming at conv's read watermark for
// userID. When no unmarked message up to upTo is left it also sets the
// unread counter to the number of messages from others after upTo and
// reports done; until then the counter is left alone so an interrupted
// run can be resumed.
func (t *Txn) MarkRead(conv *models.Conversation, userID string, upTo uint64, at time.Time, limit int) (bool, error) {
	if err := t.requireUpdate(); err != nil {
		return false, err
	}
	if limit <= 0 || limit > MaxReadMarkersPerTxn {
		limit = MaxReadMarkersPerTxn
	}
	if conv.ReadUpTo == nil {
		conv.ReadUpTo = make(map[string]uint64, len(conv.Participants))
	}

	from := conv.ReadUpTo[userID]
	done := true
	if from < upTo {
		// collect first; writing while an iterator is open is not allowed
		var pending []*models.Message
		last := from
		prefix := messagePrefix(conv.ID)
		err := t.scan(prefix, messageKey(conv.ID, from+1), false, func(m *models.Message) bool {
			if m.Seq > upTo {
				return false
			}
			if m.Sender != userID && !m.ReadByUser(userID) {
				if len(pending) == limit {
					done = false
					return false
				}
				pending = append(pending, m)
			}
			last = m.Seq
			return true
		})
		if err != nil {
			return false, err
		}
		for _, m := range pending {
			m.MarkReadBy(userID, at)
			if err := t.PutMessage(m); err != nil {
				return false, err
			}
		}
		if done {
			last = upTo
		}
		conv.ReadUpTo[userID] = last
	}

	if done {
		after, err := t.countFrom(conv.ID, upTo+1, userID)
		if err != nil {
			return false, err
		}
		conv.UnreadCounts[userID] = after
	}
	conv.UpdatedAt = at
	if err := t.PutConversation(conv); err != nil {
		return false, err
	}
	return done, nil
}

// countFrom counts the messages of a conversation from seq onward that
// were not sent by userID.
func (t *Txn) countFrom(conversationID string, seq uint64, userID string) (int, error) {
	n := 0
	err := t.scan(messagePrefix(conversationID), messageKey(conversationID, seq), false, func(m *models.Message) bool {
		if m.Sender != userID {
			n++
		}
		return true
	})
	return n, err
}

// scan walks messages under prefix starting at seek, forward or in
// reverse, until fn returns false.
func (t *Txn) scan(prefix, seek []byte, reverse bool, fn func(*models.Message) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	opts.PrefetchSize = 50
	opts.Reverse = reverse
	opts.Prefix = prefix

	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		var m models.Message
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		}); err != nil {
			return fmt.Errorf("decode message %s: %w", it.Item().Key(), err)
		}
		if !fn(&m) {
			return nil
		}
	}
	return nil
}
