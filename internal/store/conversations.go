// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package store

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/campusnet/internal/models"
)

// ConversationFilter selects conversations for a participant.
type ConversationFilter struct {
	Limit           int
	Offset          int
	IncludeArchived bool
}

// Conversation loads a conversation by id.
func (t *Txn) Conversation(id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := t.getJSON(conversationKey(id), &c); err != nil {
		return nil, err
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int, len(c.Participants))
	}
	return &c, nil
}

// PutConversation writes c and makes sure every participant has a
// membership index entry.
func (t *Txn) PutConversation(c *models.Conversation) error {
	if err := t.requireUpdate(); err != nil {
		return err
	}
	if c.ID == "" {
		return fmt.Errorf("conversation id is required")
	}
	if err := t.setJSON(conversationKey(c.ID), c); err != nil {
		return err
	}
	for _, p := range c.Participants {
		if err := t.txn.Set(memberKey(p, c.ID), nil); err != nil {
			return fmt.Errorf("set membership %s/%s: %w", p, c.ID, err)
		}
	}
	return nil
}

// CreateDirect writes a new two-party conversation and claims its pair
// index. ErrDuplicate is returned when the pair already has a conversation.
func (t *Txn) CreateDirect(c *models.Conversation) error {
	if c.IsGroup || len(c.Participants) != 2 {
		return fmt.Errorf("direct conversation needs exactly 2 participants, got %d", len(c.Participants))
	}
	lo, hi := models.DirectPairKey(c.Participants[0], c.Participants[1])
	taken, err := t.exists(pairKey(lo, hi))
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicate
	}
	if err := t.PutConversation(c); err != nil {
		return err
	}
	if err := t.txn.Set(pairKey(lo, hi), []byte(c.ID)); err != nil {
		return fmt.Errorf("set pair index: %w", err)
	}
	return nil
}

// DirectConversation finds the direct conversation between a and b in
// either order.
func (t *Txn) DirectConversation(a, b string) (*models.Conversation, error) {
	lo, hi := models.DirectPairKey(a, b)
	id, err := t.getString(pairKey(lo, hi))
	if err != nil {
		return nil, err
	}
	c, err := t.Conversation(id)
	if err != nil {
		return nil, err
	}
	if c.IsGroup || len(c.Participants) != 2 || !c.HasParticipant(a) || !c.HasParticipant(b) {
		return nil, fmt.Errorf("pair index %s/%s points at conversation %s: %w", lo, hi, id, ErrNotFound)
	}
	return c, nil
}

// ConversationIDs returns the ids of every conversation userID belongs to.
func (t *Txn) ConversationIDs(userID string) ([]string, error) {
	prefix := memberPrefix(userID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := t.txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		ids = append(ids, string(it.Item().Key()[len(prefix):]))
	}
	return ids, nil
}

// ConversationsFor loads every conversation userID belongs to, in no
// particular order.
func (t *Txn) ConversationsFor(userID string) ([]*models.Conversation, error) {
	ids, err := t.ConversationIDs(userID)
	if err != nil {
		return nil, err
	}
	convs := make([]*models.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := t.Conversation(id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// membership entries are never removed when a participant leaves
		if !c.HasParticipant(userID) {
			continue
		}
		convs = append(convs, c)
	}
	return convs, nil
}

// ListConversations returns one page of userID's conversations ordered by
// lastActivity descending, ties broken by newest creation first, plus the
// total number matching the filter. Deleted conversations never match;
// archived ones only with IncludeArchived.
func (t *Txn) ListConversations(userID string, f ConversationFilter) ([]*models.Conversation, int, error) {
	all, err := t.ConversationsFor(userID)
	if err != nil {
		return nil, 0, err
	}

	matched := all[:0]
	for _, c := range all {
		switch c.Status {
		case models.StatusDeleted:
			continue
		case models.StatusArchived:
			if !f.IncludeArchived {
				continue
			}
		}
		matched = append(matched, c)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.After(b.LastActivity)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	total := len(matched)
	if f.Offset >= total {
		return []*models.Conversation{}, total, nil
	}
	end := total
	if f.Limit > 0 && f.Offset+f.Limit < total {
		end = f.Offset + f.Limit
	}
	return matched[f.Offset:end], total, nil
}

// UnreadTotals returns userID's unread counter for each conversation that is
// not deleted.
func (t *Txn) UnreadTotals(userID string) (map[string]int, error) {
	convs, err := t.ConversationsFor(userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(convs))
	for _, c := range convs {
		if c.Status == models.StatusDeleted {
			continue
		}
		out[c.ID] = c.UnreadFor(userID)
	}
	return out, nil
}
