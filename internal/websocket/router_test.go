// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package websocket

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/campusnet/internal/models"
)

type fakeMembers struct {
	members map[string][]string
	err     error
}

func (f *fakeMembers) IsMember(_ context.Context, convID, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, id := range f.members[convID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type published struct {
	room, event, exclude string
	payload              any
}

type recordingRoomPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingRoomPublisher) PublishExcept(_ context.Context, room, event string, payload any, exclude string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{room: room, event: event, exclude: exclude, payload: payload})
	return nil
}

func newRouterFixture() (*Hub, *Router, *recordingRoomPublisher) {
	hub := NewHub("node-a")
	pub := &recordingRoomPublisher{}
	members := &fakeMembers{members: map[string][]string{"c1": {"alice", "bob"}}}
	return hub, NewRouter(hub, members, pub), pub
}

func frame(event string, data any) []byte {
	raw, _ := json.Marshal(data)
	out, _ := json.Marshal(models.Frame{Event: event, Data: raw})
	return out
}

func errorMessage(t *testing.T, f models.Frame) string {
	t.Helper()
	if f.Event != models.EventError {
		t.Fatalf("event = %s, want error (data %s)", f.Event, f.Data)
	}
	var p ErrorPayload
	if err := json.Unmarshal(f.Data, &p); err != nil {
		t.Fatal(err)
	}
	return p.Message
}

func TestRouter_JoinPersonalRoom(t *testing.T) {
	hub, router, _ := newRouterFixture()
	alice := newTestClient(hub, router, "alice", Settings{})

	router.Handle(alice, frame(models.EventJoin, joinRequest{UserID: "alice"}))
	f := nextFrame(t, alice)
	if f.Event != models.EventJoined {
		t.Fatalf("event = %s", f.Event)
	}
	if !hub.InRoom(models.UserRoom("alice"), alice) {
		t.Error("alice not in personal room")
	}

	// no data joins the authenticated user's room
	bob := newTestClient(hub, router, "bob", Settings{})
	router.Handle(bob, []byte(`{"event":"join"}`))
	nextFrame(t, bob)
	if !hub.InRoom(models.UserRoom("bob"), bob) {
		t.Error("bob not in personal room")
	}
}

func TestRouter_JoinOtherUserRejected(t *testing.T) {
	hub, router, _ := newRouterFixture()
	mallory := newTestClient(hub, router, "mallory", Settings{})

	router.Handle(mallory, frame(models.EventJoin, joinRequest{UserID: "alice"}))
	if msg := errorMessage(t, nextFrame(t, mallory)); !strings.Contains(msg, "another user") {
		t.Errorf("message = %q", msg)
	}
	if hub.RoomSize(models.UserRoom("alice")) != 0 {
		t.Error("mallory joined alice's room")
	}
}

func TestRouter_JoinConversation(t *testing.T) {
	hub, router, _ := newRouterFixture()
	alice := newTestClient(hub, router, "alice", Settings{})
	carol := newTestClient(hub, router, "carol", Settings{})

	router.Handle(alice, frame(models.EventJoinConversation, conversationRequest{ConversationID: "c1"}))
	f := nextFrame(t, alice)
	var rp RoomPayload
	_ = json.Unmarshal(f.Data, &rp)
	if f.Event != models.EventJoined || rp.ConversationID != "c1" || rp.Room != "conversation:c1" {
		t.Errorf("got %s %+v", f.Event, rp)
	}

	router.Handle(carol, frame(models.EventJoinConversation, conversationRequest{ConversationID: "c1"}))
	if msg := errorMessage(t, nextFrame(t, carol)); !strings.Contains(msg, "not a participant") {
		t.Errorf("message = %q", msg)
	}
	if hub.InRoom(models.ConversationRoom("c1"), carol) {
		t.Error("non-member joined the room")
	}

	router.Handle(alice, frame(models.EventLeaveConversation, conversationRequest{ConversationID: "c1"}))
	if f := nextFrame(t, alice); f.Event != models.EventLeft {
		t.Errorf("event = %s, want left", f.Event)
	}
	if hub.InRoom(models.ConversationRoom("c1"), alice) {
		t.Error("alice still in room after leave")
	}
}

func TestRouter_MembershipCheckFailure(t *testing.T) {
	hub := NewHub("node-a")
	router := NewRouter(hub, &fakeMembers{err: errors.New("store down")}, &recordingRoomPublisher{})
	alice := newTestClient(hub, router, "alice", Settings{})

	router.Handle(alice, frame(models.EventJoinConversation, conversationRequest{ConversationID: "c1"}))
	if msg := errorMessage(t, nextFrame(t, alice)); msg != "could not join conversation" {
		t.Errorf("message = %q", msg)
	}
}

func TestRouter_TypingRequiresJoin(t *testing.T) {
	hub, router, pub := newRouterFixture()
	alice := newTestClient(hub, router, "alice", Settings{})

	router.Handle(alice, frame(models.EventTypingStart, conversationRequest{ConversationID: "c1"}))
	errorMessage(t, nextFrame(t, alice))
	if len(pub.sent) != 0 {
		t.Fatalf("typing relayed without join: %+v", pub.sent)
	}

	router.Handle(alice, frame(models.EventJoinConversation, conversationRequest{ConversationID: "c1"}))
	nextFrame(t, alice)
	router.Handle(alice, frame(models.EventTypingStart, conversationRequest{ConversationID: "c1"}))
	router.Handle(alice, frame(models.EventTypingStop, conversationRequest{ConversationID: "c1"}))
	assertNoFrame(t, alice)

	if len(pub.sent) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.sent))
	}
	first := pub.sent[0]
	if first.event != models.EventUserTyping || first.room != "conversation:c1" || first.exclude != alice.ID() {
		t.Errorf("first = %+v", first)
	}
	if p, ok := first.payload.(models.TypingPayload); !ok || p.UserID != "alice" {
		t.Errorf("payload = %#v", first.payload)
	}
	if pub.sent[1].event != models.EventUserStoppedTyping {
		t.Errorf("second event = %s", pub.sent[1].event)
	}
}

func TestRouter_InvalidFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "not json", raw: `hello`, want: "malformed frame"},
		{name: "missing event", raw: `{"data":{}}`, want: "malformed frame"},
		{name: "unknown event", raw: `{"event":"dance"}`, want: "unknown event"},
		{name: "missing conversation", raw: `{"event":"join_conversation","data":{}}`, want: "conversationId is required"},
		{name: "no data", raw: `{"event":"typing_start"}`, want: "conversationId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub, router, _ := newRouterFixture()
			c := newTestClient(hub, router, "alice", Settings{})
			router.Handle(c, []byte(tt.raw))
			if got := errorMessage(t, nextFrame(t, c)); got != tt.want {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouter_Throttled(t *testing.T) {
	hub, router, _ := newRouterFixture()
	c := newTestClient(hub, router, "alice", Settings{EventsPerSecond: 0.001, EventBurst: 1})

	router.Handle(c, frame(models.EventJoin, nil))
	if f := nextFrame(t, c); f.Event != models.EventJoined {
		t.Fatalf("event = %s", f.Event)
	}
	router.Handle(c, frame(models.EventJoin, nil))
	if msg := errorMessage(t, nextFrame(t, c)); !strings.Contains(msg, "too many") {
		t.Errorf("message = %q", msg)
	}
}
