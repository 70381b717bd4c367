// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package chat implements the Conversation Service: creating and finding
// conversations, enforcing participant rules, appending messages with
// their unread bookkeeping, and triggering realtime fan-out.
//
// Every mutation runs in a single store transaction. A message is
// acknowledged only after it has committed together with the
// conversation's lastMessage, lastActivity and unread counters, so a
// participant listing conversations can never observe one without the
// other. Fan-out happens after commit and its failures are logged and
// dropped; clients recover by fetching.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tomtom215/campusnet/internal/config"
	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
	"github.com/tomtom215/campusnet/internal/store"
)

// DefaultTombstone replaces the content of soft-deleted messages.
const DefaultTombstone = "This message was deleted"

// Options tunes the service limits.
type Options struct {
	MaxContentLength int
	DefaultPageSize  int
	MaxPageSize      int
	MaxGroupSize     int
	MaxGroupName     int
	SearchLimit      int
	TombstoneText    string

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{
		MaxContentLength: 2000,
		DefaultPageSize:  50,
		MaxPageSize:      100,
		MaxGroupSize:     256,
		MaxGroupName:     100,
		SearchLimit:      20,
		TombstoneText:    DefaultTombstone,
	}
}

// OptionsFromConfig maps the chat config section onto Options.
func OptionsFromConfig(c config.ChatConfig) Options {
	o := DefaultOptions()
	o.MaxContentLength = c.MaxContentLength
	o.DefaultPageSize = c.DefaultPageSize
	o.MaxPageSize = c.MaxPageSize
	o.MaxGroupSize = c.MaxGroupSize
	o.SearchLimit = c.SearchLimit
	o.TombstoneText = c.TombstoneText
	return o
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = d.MaxContentLength
	}
	if o.DefaultPageSize <= 0 {
		o.DefaultPageSize = d.DefaultPageSize
	}
	if o.MaxPageSize < o.DefaultPageSize {
		o.MaxPageSize = max(d.MaxPageSize, o.DefaultPageSize)
	}
	if o.MaxGroupSize < 2 {
		o.MaxGroupSize = d.MaxGroupSize
	}
	if o.MaxGroupName <= 0 {
		o.MaxGroupName = d.MaxGroupName
	}
	if o.SearchLimit <= 0 {
		o.SearchLimit = d.SearchLimit
	}
	if o.TombstoneText == "" {
		o.TombstoneText = d.TombstoneText
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
}

// Service is the Conversation Service.
type Service struct {
	store     *store.Store
	directory UserDirectory
	files     FileResolver
	publisher Publisher
	opts      Options

	// Per-conversation write locks. Writers of one conversation queue here
	// instead of conflicting in the store; the store still retries
	// conflicts with other instances.
	convLocks sync.Map
}

// NewService wires the service. files may be nil when attachments are
// disabled; publisher may be nil to turn fan-out off.
func NewService(st *store.Store, directory UserDirectory, files FileResolver, publisher Publisher, opts Options) *Service {
	opts.normalize()
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Service{
		store:     st,
		directory: directory,
		files:     files,
		publisher: publisher,
		opts:      opts,
	}
}

// Options returns the effective limits.
func (s *Service) Options() Options {
	return s.opts
}

// lockConversation serializes writers of one conversation in this process.
func (s *Service) lockConversation(conversationID string) func() {
	v, _ := s.convLocks.LoadOrStore(conversationID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

// validateContent trims content and checks its length in characters.
// Empty content is allowed only when allowEmpty is set.
func (s *Service) validateContent(op, content string, allowEmpty bool) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" && !allowEmpty {
		return "", newError(ErrEmptyContent, op, "message content is required")
	}
	if n := utf8.RuneCountInString(content); n > s.opts.MaxContentLength {
		return "", newError(ErrContentTooLong, op, "message content is %d characters, limit is %d", n, s.opts.MaxContentLength)
	}
	return content, nil
}

// requireID rejects empty identifiers.
func requireID(op, name, id string) error {
	if strings.TrimSpace(id) == "" {
		return newError(ErrValidation, op, "%s is required", name)
	}
	return nil
}

// loadMember loads a live conversation and checks that userID belongs to it.
func loadMember(tx *store.Txn, op, conversationID, userID string) (*models.Conversation, error) {
	conv, err := tx.Conversation(conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(ErrNotFound, op, "conversation not found")
	}
	if err != nil {
		return nil, err
	}
	if conv.Status == models.StatusDeleted {
		return nil, newError(ErrNotFound, op, "conversation not found")
	}
	if !conv.HasParticipant(userID) {
		return nil, newError(ErrNotMember, op, "you are not a participant of this conversation")
	}
	return conv, nil
}

// checkUser reports ErrInvalidParticipant unless userID is a known,
// approved user.
func (s *Service) checkUser(ctx context.Context, op, userID string) (*models.UserProfile, error) {
	p, err := s.directory.Lookup(ctx, userID)
	if errors.Is(err, ErrUnknownUser) {
		return nil, newError(ErrInvalidParticipant, op, "user %s does not exist", userID)
	}
	if err != nil {
		return nil, err
	}
	if !p.Approved {
		return nil, newError(ErrInvalidParticipant, op, "user %s cannot receive messages", userID)
	}
	return p, nil
}

// profiles resolves display profiles for ids. Users the directory cannot
// resolve get a bare profile so the slice stays aligned with ids.
func (s *Service) profiles(ctx context.Context, ids []string) []models.UserProfile {
	out := make([]models.UserProfile, 0, len(ids))
	for _, id := range ids {
		p, err := s.directory.Lookup(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrUnknownUser) {
				logging.Ctx(ctx).Warn().Err(err).Str("lookup_user", id).Msg("Profile lookup failed")
			}
			out = append(out, models.UserProfile{ID: id})
			continue
		}
		out = append(out, *p)
	}
	return out
}

func (s *Service) conversationView(ctx context.Context, c *models.Conversation, viewer string) *models.ConversationView {
	return &models.ConversationView{
		Conversation: *c,
		Profiles:     s.profiles(ctx, c.Participants),
		UnreadCount:  c.UnreadFor(viewer),
	}
}

func (s *Service) messageViews(ctx context.Context, msgs []*models.Message) []models.MessageView {
	senders := make(map[string]*models.UserProfile)
	out := make([]models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		p, ok := senders[m.Sender]
		if !ok {
			if found, err := s.directory.Lookup(ctx, m.Sender); err == nil {
				p = found
			}
			senders[m.Sender] = p
		}
		out = append(out, models.MessageView{Message: *m, SenderProfile: p})
	}
	return out
}

// publish hands an event to the fan-out. Errors are logged and dropped.
func (s *Service) publish(ctx context.Context, room, event string, payload any) {
	if err := s.publisher.Publish(ctx, room, event, payload); err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("room", room).
			Str("event", event).
			Msg("Realtime publish failed")
	}
}
