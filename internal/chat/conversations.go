// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/metrics"
	"github.com/tomtom215/campusnet/internal/models"
	"github.com/tomtom215/campusnet/internal/store"
)

// GroupInput describes a new group conversation.
type GroupInput struct {
	Name         string
	Avatar       string
	Participants []string
}

// ListOptions selects a page of the caller's conversations.
type ListOptions struct {
	Limit           int
	Offset          int
	IncludeArchived bool
}

// UnreadSummary is the caller's unread state across conversations.
type UnreadSummary struct {
	Total         int            `json:"totalUnread"`
	Conversations map[string]int `json:"conversations"`
}

// StartOrGetConversation returns the direct conversation between userA
// and userB, creating it on first use. Concurrent first calls for the same
// pair converge on one conversation. A previously archived or deleted
// conversation for the pair is restored to active.
func (s *Service) StartOrGetConversation(ctx context.Context, userA, userB string) (*models.ConversationView, error) {
	const op = "start conversation"
	if err := requireID(op, "userId", userB); err != nil {
		return nil, err
	}
	if err := requireID(op, "caller", userA); err != nil {
		return nil, err
	}
	if userA == userB {
		return nil, newError(ErrInvalidParticipant, op, "cannot start a conversation with yourself")
	}
	for _, u := range []string{userA, userB} {
		if _, err := s.checkUser(ctx, op, u); err != nil {
			return nil, err
		}
	}

	var (
		conv    *models.Conversation
		created bool
	)
	err := s.store.Update(ctx, func(tx *store.Txn) error {
		created = false
		existing, err := tx.DirectConversation(userA, userB)
		if err == nil {
			if existing.Status != models.StatusActive {
				existing.Status = models.StatusActive
				existing.UpdatedAt = s.now()
				if err := tx.PutConversation(existing); err != nil {
					return err
				}
			}
			conv = existing
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := s.now()
		conv = &models.Conversation{
			ID:           uuid.NewString(),
			Participants: []string{userA, userB},
			LastActivity: now,
			UnreadCounts: map[string]int{userA: 0, userB: 0},
			Status:       models.StatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		created = true
		return tx.CreateDirect(conv)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if created {
		metrics.ConversationsCreated.WithLabelValues("direct").Inc()
		logging.Ctx(ctx).Info().Str("conversation_id", conv.ID).Str("peer_id", userB).Msg("Direct conversation created")
	}
	return s.conversationView(ctx, conv, userA), nil
}

// CreateGroup creates a group conversation administered by creator.
// Participant ids are deduplicated and creator always comes first.
func (s *Service) CreateGroup(ctx context.Context, creator string, in GroupInput) (*models.ConversationView, error) {
	const op = "create group"
	if err := requireID(op, "caller", creator); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, newError(ErrValidation, op, "group name is required")
	}
	if utf8.RuneCountInString(name) > s.opts.MaxGroupName {
		return nil, newError(ErrValidation, op, "group name exceeds %d characters", s.opts.MaxGroupName)
	}

	participants := []string{creator}
	seen := map[string]bool{creator: true}
	for _, id := range in.Participants {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		participants = append(participants, id)
	}
	if len(participants) > s.opts.MaxGroupSize {
		return nil, newError(ErrValidation, op, "a group holds at most %d participants", s.opts.MaxGroupSize)
	}
	for _, id := range participants {
		if _, err := s.checkUser(ctx, op, id); err != nil {
			return nil, err
		}
	}

	now := s.now()
	conv := &models.Conversation{
		ID:           uuid.NewString(),
		Participants: participants,
		IsGroup:      true,
		GroupName:    name,
		GroupAvatar:  strings.TrimSpace(in.Avatar),
		GroupAdmin:   creator,
		LastActivity: now,
		UnreadCounts: make(map[string]int, len(participants)),
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, p := range participants {
		conv.UnreadCounts[p] = 0
	}

	if err := s.store.Update(ctx, func(tx *store.Txn) error {
		return tx.PutConversation(conv)
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.ConversationsCreated.WithLabelValues("group").Inc()
	logging.Ctx(ctx).Info().
		Str("conversation_id", conv.ID).
		Int("participants", len(participants)).
		Msg("Group conversation created")

	for _, p := range participants[1:] {
		s.publish(ctx, models.UserRoom(p), models.EventConversationUpdated, models.ConversationUpdate{
			ConversationID: conv.ID,
		})
	}
	return s.conversationView(ctx, conv, creator), nil
}

// AddParticipant adds userID to a group. Only the group admin may add
// members, and direct conversations never take a third participant.
// Adding an existing member is a no-op.
func (s *Service) AddParticipant(ctx context.Context, conversationID, actor, userID string) (*models.ConversationView, error) {
	const op = "add participant"
	if err := requireID(op, "conversationId", conversationID); err != nil {
		return nil, err
	}
	if err := requireID(op, "userId", userID); err != nil {
		return nil, err
	}
	if _, err := s.checkUser(ctx, op, userID); err != nil {
		return nil, err
	}

	unlock := s.lockConversation(conversationID)
	defer unlock()

	var conv *models.Conversation
	added := false
	err := s.store.Update(ctx, func(tx *store.Txn) error {
		added = false
		c, err := loadMember(tx, op, conversationID, actor)
		if err != nil {
			return err
		}
		if !c.IsGroup {
			return newError(ErrInvalidParticipant, op, "direct conversations have exactly two participants")
		}
		if c.GroupAdmin != actor {
			return newError(ErrForbidden, op, "only the group admin can add participants")
		}
		conv = c
		if c.HasParticipant(userID) {
			return nil
		}
		if len(c.Participants) >= s.opts.MaxGroupSize {
			return newError(ErrValidation, op, "a group holds at most %d participants", s.opts.MaxGroupSize)
		}
		c.Participants = append(c.Participants, userID)
		c.UnreadCounts[userID] = 0
		c.UpdatedAt = s.now()
		added = true
		return tx.PutConversation(c)
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}

	if added {
		logging.Ctx(ctx).Info().Str("conversation_id", conv.ID).Str("added_user", userID).Msg("Participant added")
		s.publish(ctx, models.UserRoom(userID), models.EventConversationUpdated, models.ConversationUpdate{
			ConversationID: conv.ID,
			LastMessage:    conv.LastMessage,
		})
	}
	return s.conversationView(ctx, conv, actor), nil
}

// ListConversations returns a page of userID's conversations, most recent
// activity first, and the total matching the filter.
func (s *Service) ListConversations(ctx context.Context, userID string, opts ListOptions) ([]models.ConversationView, int, error) {
	const op = "list conversations"
	if err := requireID(op, "caller", userID); err != nil {
		return nil, 0, err
	}
	if opts.Limit <= 0 {
		opts.Limit = s.opts.DefaultPageSize
	}
	opts.Limit = min(opts.Limit, s.opts.MaxPageSize)
	opts.Offset = max(opts.Offset, 0)

	var (
		convs []*models.Conversation
		total int
	)
	err := s.store.View(ctx, func(tx *store.Txn) error {
		var err error
		convs, total, err = tx.ListConversations(userID, store.ConversationFilter{
			Limit:           opts.Limit,
			Offset:          opts.Offset,
			IncludeArchived: opts.IncludeArchived,
		})
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	views := make([]models.ConversationView, 0, len(convs))
	for _, c := range convs {
		views = append(views, *s.conversationView(ctx, c, userID))
	}
	return views, total, nil
}

// GetConversation returns one conversation the caller belongs to.
func (s *Service) GetConversation(ctx context.Context, conversationID, userID string) (*models.ConversationView, error) {
	const op = "get conversation"
	if err := requireID(op, "conversationId", conversationID); err != nil {
		return nil, err
	}
	var conv *models.Conversation
	err := s.store.View(ctx, func(tx *store.Txn) error {
		var err error
		conv, err = loadMember(tx, op, conversationID, userID)
		return err
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}
	return s.conversationView(ctx, conv, userID), nil
}

// IsMember reports whether userID participates in a live conversation.
func (s *Service) IsMember(ctx context.Context, conversationID, userID string) (bool, error) {
	member := false
	err := s.store.View(ctx, func(tx *store.Txn) error {
		_, err := loadMember(tx, "check membership", conversationID, userID)
		if err == nil {
			member = true
			return nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotMember) {
			return nil
		}
		return err
	})
	return member, err
}

// UnreadCount sums userID's unread counters over conversations that are
// not deleted.
func (s *Service) UnreadCount(ctx context.Context, userID string) (*UnreadSummary, error) {
	const op = "unread count"
	if err := requireID(op, "caller", userID); err != nil {
		return nil, err
	}
	var totals map[string]int
	err := s.store.View(ctx, func(tx *store.Txn) error {
		var err error
		totals, err = tx.UnreadTotals(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sum := &UnreadSummary{Conversations: totals}
	for _, n := range totals {
		sum.Total += n
	}
	return sum, nil
}

// Archive hides a conversation from the default list.
func (s *Service) Archive(ctx context.Context, conversationID, userID string) (*models.ConversationView, error) {
	return s.setStatus(ctx, "archive conversation", conversationID, userID, models.StatusArchived)
}

// Unarchive returns an archived conversation to the default list.
func (s *Service) Unarchive(ctx context.Context, conversationID, userID string) (*models.ConversationView, error) {
	return s.setStatus(ctx, "unarchive conversation", conversationID, userID, models.StatusActive)
}

// SoftDelete marks a conversation deleted. It stays in the store but is
// excluded from every query.
func (s *Service) SoftDelete(ctx context.Context, conversationID, userID string) (*models.ConversationView, error) {
	return s.setStatus(ctx, "delete conversation", conversationID, userID, models.StatusDeleted)
}

func (s *Service) setStatus(ctx context.Context, op, conversationID, userID string, status models.ConversationStatus) (*models.ConversationView, error) {
	if err := requireID(op, "conversationId", conversationID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, newError(ErrValidation, op, "invalid status %q", status)
	}
	unlock := s.lockConversation(conversationID)
	defer unlock()

	var conv *models.Conversation
	err := s.store.Update(ctx, func(tx *store.Txn) error {
		c, err := loadMember(tx, op, conversationID, userID)
		if err != nil {
			return err
		}
		conv = c
		if c.Status == status {
			return nil
		}
		c.Status = status
		c.UpdatedAt = s.now()
		return tx.PutConversation(c)
	})
	if err != nil {
		return nil, wrapOp(op, err)
	}
	logging.Ctx(ctx).Info().Str("conversation_id", conversationID).Str("status", string(status)).Msg("Conversation status changed")
	return s.conversationView(ctx, conv, userID), nil
}

// wrapOp adds op context to internal errors and passes domain errors
// through untouched.
func wrapOp(op string, err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
