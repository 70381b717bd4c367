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
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
	"github.com/tomtom215/campusnet/internal/store"
)

func init() {
	logging.Init(logging.Config{Level: "disabled"})
}

type published struct {
	Room    string
	Event   string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, room, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Room: room, Event: event, Payload: payload})
	return p.err
}

func (p *recordingPublisher) take() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

type fakeResolver struct {
	files map[string]*models.FileMeta
}

func (r *fakeResolver) Resolve(_ context.Context, key string) (*models.FileMeta, error) {
	if f, ok := r.files[key]; ok {
		return f, nil
	}
	return nil, Invalid("resolve file", "file %q not found", key)
}

type fixture struct {
	svc   *Service
	store *store.Store
	dir   *Directory
	pub   *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := NewDirectory(st, 100, time.Minute)
	pub := &recordingPublisher{}

	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}

	resolver := &fakeResolver{files: map[string]*models.FileMeta{
		"uploads/notes.pdf": {URL: "https://files.example/notes.pdf", Name: "notes.pdf", Size: 2048},
	}}

	f := &fixture{
		svc:   NewService(st, dir, resolver, pub, opts),
		store: st,
		dir:   dir,
		pub:   pub,
	}
	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		f.addUser(t, u, true)
	}
	f.addUser(t, "mallory", false)
	return f
}

func (f *fixture) addUser(t *testing.T, id string, approved bool) {
	t.Helper()
	_, err := f.dir.Upsert(context.Background(), &models.UserProfile{
		ID:          id,
		DisplayName: strings.ToUpper(id[:1]) + id[1:],
		Approved:    approved,
	})
	if err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
}

func (f *fixture) direct(t *testing.T, a, b string) string {
	t.Helper()
	v, err := f.svc.StartOrGetConversation(context.Background(), a, b)
	if err != nil {
		t.Fatalf("start %s/%s: %v", a, b, err)
	}
	return v.ID
}

func (f *fixture) send(t *testing.T, convID, sender, content string) *models.MessageView {
	t.Helper()
	m, err := f.svc.SendMessage(context.Background(), SendInput{
		ConversationID: convID,
		SenderID:       sender,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
	return m
}

func (f *fixture) unread(t *testing.T, convID, user string) int {
	t.Helper()
	v, err := f.svc.GetConversation(context.Background(), convID, user)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	return v.UnreadCount
}

func contents(views []models.MessageView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Content
	}
	return out
}

func TestStartOrGetConversation_ReturnsSameConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.StartOrGetConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := f.svc.StartOrGetConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}
	if first.IsGroup || len(first.Participants) != 2 {
		t.Errorf("unexpected shape: %+v", first.Conversation)
	}
	if first.UnreadCounts["alice"] != 0 || first.UnreadCounts["bob"] != 0 {
		t.Errorf("unread = %v, want zeros", first.UnreadCounts)
	}
	if len(first.Profiles) != 2 || first.Profiles[1].DisplayName != "Bob" {
		t.Errorf("profiles = %+v", first.Profiles)
	}

	_, total, err := f.svc.ListConversations(ctx, "alice", ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("alice has %d conversations, want 1", total)
	}
}

func TestStartOrGetConversation_Concurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			v, err := f.svc.StartOrGetConversation(ctx, a, b)
			errs[i] = err
			if err == nil {
				ids[i] = v.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("caller %d got %s, caller 0 got %s", i, ids[i], ids[0])
		}
	}
	_, total, _ := f.svc.ListConversations(ctx, "bob", ListOptions{})
	if total != 1 {
		t.Errorf("bob has %d conversations, want 1", total)
	}
}

func TestStartOrGetConversation_InvalidParticipant(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		a, b string
		want error
	}{
		{"self", "alice", "alice", ErrInvalidParticipant},
		{"unknown peer", "alice", "zed", ErrInvalidParticipant},
		{"unapproved peer", "alice", "mallory", ErrInvalidParticipant},
		{"missing peer id", "alice", "", ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.StartOrGetConversation(context.Background(), tt.a, tt.b)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestStartOrGetConversation_ColonInIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, u := range []string{"a:b", "c", "a", "b:c"} {
		f.addUser(t, u, true)
	}

	first := f.direct(t, "a:b", "c")
	f.send(t, first, "a:b", "secret for c")

	v, err := f.svc.StartOrGetConversation(ctx, "a", "b:c")
	if err != nil {
		t.Fatalf("start a/b:c: %v", err)
	}
	if v.ID == first {
		t.Fatalf("a/b:c was handed the a:b/c conversation")
	}
	if v.LastMessage != nil {
		t.Errorf("new conversation has lastMessage %+v", v.LastMessage)
	}
	if !v.HasParticipant("a") || !v.HasParticipant("b:c") {
		t.Errorf("participants = %v", v.Participants)
	}
	if _, err := f.svc.GetConversation(ctx, first, "a"); !errors.Is(err, ErrNotMember) {
		t.Errorf("a reading a:b/c: error = %v, want ErrNotMember", err)
	}
}

func TestUnreadLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c1 := f.direct(t, "alice", "bob")

	f.send(t, c1, "alice", "hi")
	if got := f.unread(t, c1, "bob"); got != 1 {
		t.Errorf("bob unread = %d, want 1", got)
	}
	if got := f.unread(t, c1, "alice"); got != 0 {
		t.Errorf("alice unread = %d, want 0", got)
	}
	conv, _ := f.svc.GetConversation(ctx, c1, "alice")
	if conv.LastMessage == nil || conv.LastMessage.Content != "hi" {
		t.Errorf("lastMessage = %+v, want hi", conv.LastMessage)
	}

	if err := f.svc.MarkRead(ctx, c1, "bob"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if got := f.unread(t, c1, "bob"); got != 0 {
		t.Errorf("bob unread after read = %d, want 0", got)
	}

	f.send(t, c1, "bob", "hello")
	if got := f.unread(t, c1, "alice"); got != 1 {
		t.Errorf("alice unread = %d, want 1", got)
	}
	if got := f.unread(t, c1, "bob"); got != 0 {
		t.Errorf("bob unread = %d, want 0", got)
	}

	page, err := f.svc.GetMessages(ctx, c1, "alice", MessageQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if got := contents(page.Messages); strings.Join(got, ",") != "hi,hello" {
		t.Errorf("messages = %v, want [hi hello]", got)
	}
}

func TestMarkRead_IdempotentAndStampsMarkers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")
	f.send(t, c, "alice", "one")
	f.send(t, c, "alice", "two")
	f.send(t, c, "bob", "three")

	for i := 0; i < 2; i++ {
		if err := f.svc.MarkRead(ctx, c, "bob"); err != nil {
			t.Fatalf("mark read #%d: %v", i+1, err)
		}
		if got := f.unread(t, c, "bob"); got != 0 {
			t.Errorf("unread after mark #%d = %d", i+1, got)
		}
	}

	page, _ := f.svc.GetMessages(ctx, c, "bob", MessageQuery{})
	for _, m := range page.Messages {
		want := m.Sender != "bob"
		if got := m.ReadByUser("bob"); got != want {
			t.Errorf("message %q readBy bob = %v, want %v", m.Content, got, want)
		}
		if len(m.ReadBy) > 1 {
			t.Errorf("message %q has %d markers", m.Content, len(m.ReadBy))
		}
	}

	if pub := f.pub.take(); len(pub) == 0 {
		t.Fatal("expected send events")
	}
	_ = f.svc.MarkRead(ctx, c, "alice")
	if pub := f.pub.take(); len(pub) != 0 {
		t.Errorf("mark read published %v", pub)
	}
}

func TestMarkRead_LongUnreadRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")

	const n = store.MaxReadMarkersPerTxn + 5
	for i := 0; i < n; i++ {
		f.send(t, c, "alice", fmt.Sprintf("m%d", i+1))
	}
	f.send(t, c, "bob", "finally")

	if err := f.svc.MarkRead(ctx, c, "bob"); err != nil {
		t.Fatal(err)
	}
	if got := f.unread(t, c, "bob"); got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}

	err := f.store.View(ctx, func(tx *store.Txn) error {
		msgs, err := tx.Messages(c, store.Page{Limit: n + 1})
		if err != nil {
			return err
		}
		if len(msgs) != n+1 {
			t.Fatalf("len = %d, want %d", len(msgs), n+1)
		}
		unmarked := 0
		for _, m := range msgs {
			if m.Sender == "alice" && !m.ReadByUser("bob") {
				unmarked++
			}
			if m.Sender == "bob" && len(m.ReadBy) != 0 {
				t.Errorf("own message %d carries markers %v", m.Seq, m.ReadBy)
			}
		}
		if unmarked != 0 {
			t.Errorf("%d of alice's messages have no marker for bob", unmarked)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.MarkRead(ctx, c, "bob"); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	f := newFixture(t)
	c := f.direct(t, "alice", "bob")

	tests := []struct {
		name string
		in   SendInput
		want error
	}{
		{"empty", SendInput{Content: "   "}, ErrEmptyContent},
		{"too long", SendInput{Content: strings.Repeat("a", 2001)}, ErrContentTooLong},
		{"unsupported type", SendInput{Content: "x", MessageType: "video"}, ErrValidation},
		{"image without file", SendInput{MessageType: models.MessageImage}, ErrValidation},
		{"text with file", SendInput{Content: "x", FileKey: "uploads/notes.pdf"}, ErrValidation},
		{"unknown file", SendInput{MessageType: models.MessageFile, FileKey: "uploads/missing"}, ErrValidation},
		{"bad reply", SendInput{Content: "x", ReplyTo: "nope"}, ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			in.ConversationID = c
			in.SenderID = "alice"
			_, err := f.svc.SendMessage(context.Background(), in)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error %v should be a validation error", err)
			}
		})
	}

	if got := f.unread(t, c, "bob"); got != 0 {
		t.Errorf("rejected sends changed unread to %d", got)
	}
}

func TestSendMessage_ContentLimitCountsCharacters(t *testing.T) {
	f := newFixture(t)
	c := f.direct(t, "alice", "bob")

	// 2000 multi-byte characters are well over 2000 bytes but within limit
	content := strings.Repeat("é", 2000)
	m, err := f.svc.SendMessage(context.Background(), SendInput{ConversationID: c, SenderID: "alice", Content: content})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.Content != content {
		t.Error("content altered")
	}
}

func TestSendMessage_MembershipAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")

	_, err := f.svc.SendMessage(ctx, SendInput{ConversationID: c, SenderID: "carol", Content: "hey"})
	if !errors.Is(err, ErrNotMember) {
		t.Errorf("outsider send error = %v, want ErrNotMember", err)
	}

	_, err = f.svc.SendMessage(ctx, SendInput{ConversationID: "missing", SenderID: "alice", Content: "hey"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing conversation error = %v, want ErrNotFound", err)
	}

	if _, err := f.svc.Archive(ctx, c, "bob"); err != nil {
		t.Fatal(err)
	}
	f.send(t, c, "alice", "wake up")
	v, _ := f.svc.GetConversation(ctx, c, "bob")
	if v.Status != models.StatusActive {
		t.Errorf("status after send = %s, want active", v.Status)
	}

	if _, err := f.svc.SoftDelete(ctx, c, "alice"); err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.SendMessage(ctx, SendInput{ConversationID: c, SenderID: "alice", Content: "hey"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted conversation error = %v, want ErrNotFound", err)
	}
}

func TestSendMessage_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	g, err := f.svc.CreateGroup(context.Background(), "alice", GroupInput{Name: "Study", Participants: []string{"bob", "carol"}})
	if err != nil {
		t.Fatal(err)
	}
	f.pub.take()

	m := f.send(t, g.ID, "alice", "quiz tomorrow")
	events := f.pub.take()
	if len(events) != 3 {
		t.Fatalf("published %d events, want 3: %+v", len(events), events)
	}

	first := events[0]
	if first.Room != models.ConversationRoom(g.ID) || first.Event != models.EventNewMessage {
		t.Errorf("first event = %s/%s", first.Room, first.Event)
	}
	view, ok := first.Payload.(models.MessageView)
	if !ok || view.ID != m.ID || view.SenderProfile == nil || view.SenderProfile.DisplayName != "Alice" {
		t.Errorf("new_message payload = %+v", first.Payload)
	}

	rooms := map[string]bool{}
	for _, e := range events[1:] {
		if e.Event != models.EventConversationUpdated {
			t.Errorf("event = %s, want conversation_updated", e.Event)
		}
		upd := e.Payload.(models.ConversationUpdate)
		if upd.UnreadCount != 1 || upd.LastMessage == nil || upd.LastMessage.MessageID != m.ID {
			t.Errorf("update payload = %+v", upd)
		}
		rooms[e.Room] = true
	}
	if !rooms[models.UserRoom("bob")] || !rooms[models.UserRoom("carol")] || rooms[models.UserRoom("alice")] {
		t.Errorf("personal rooms = %v", rooms)
	}
}

func TestSendMessage_PublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	c := f.direct(t, "alice", "bob")
	f.pub.err = errors.New("backplane down")

	if _, err := f.svc.SendMessage(context.Background(), SendInput{ConversationID: c, SenderID: "alice", Content: "still stored"}); err != nil {
		t.Fatalf("send error = %v, want nil", err)
	}
	if got := f.unread(t, c, "bob"); got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}
}

func TestSendMessage_FileAndReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")
	other := f.direct(t, "alice", "carol")

	m, err := f.svc.SendMessage(ctx, SendInput{
		ConversationID: c,
		SenderID:       "alice",
		MessageType:    models.MessageFile,
		FileKey:        "uploads/notes.pdf",
	})
	if err != nil {
		t.Fatalf("file send: %v", err)
	}
	if m.FileName != "notes.pdf" || m.FileSize != 2048 || m.FileURL == "" {
		t.Errorf("file fields = %q %d %q", m.FileName, m.FileSize, m.FileURL)
	}

	reply, err := f.svc.SendMessage(ctx, SendInput{ConversationID: c, SenderID: "bob", Content: "thanks", ReplyTo: m.ID})
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ReplyTo != m.ID {
		t.Errorf("replyTo = %q", reply.ReplyTo)
	}

	_, err = f.svc.SendMessage(ctx, SendInput{ConversationID: other, SenderID: "alice", Content: "x", ReplyTo: m.ID})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("cross-conversation reply error = %v", err)
	}
}

func TestSendMessage_ConcurrentSendersLoseNoIncrements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.svc.CreateGroup(ctx, "alice", GroupInput{Name: "Lab", Participants: []string{"bob", "carol"}})
	if err != nil {
		t.Fatal(err)
	}

	const perSender = 15
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				if _, err := f.svc.SendMessage(ctx, SendInput{ConversationID: g.ID, SenderID: sender, Content: "msg"}); err != nil {
					t.Errorf("%s send: %v", sender, err)
					return
				}
			}
		}(sender)
	}
	wg.Wait()

	if got := f.unread(t, g.ID, "carol"); got != 2*perSender {
		t.Errorf("carol unread = %d, want %d", got, 2*perSender)
	}
	if got := f.unread(t, g.ID, "alice"); got != perSender {
		t.Errorf("alice unread = %d, want %d", got, perSender)
	}

	page, _ := f.svc.GetMessages(ctx, g.ID, "carol", MessageQuery{Limit: 100})
	if len(page.Messages) != 2*perSender {
		t.Fatalf("got %d messages", len(page.Messages))
	}
	for i, m := range page.Messages {
		if m.Seq != uint64(i+1) {
			t.Fatalf("message %d has seq %d", i, m.Seq)
		}
	}
	v, _ := f.svc.GetConversation(ctx, g.ID, "carol")
	if v.LastMessage.Seq != page.Messages[len(page.Messages)-1].Seq {
		t.Errorf("lastMessage seq %d behind newest %d", v.LastMessage.Seq, page.Messages[len(page.Messages)-1].Seq)
	}
}

func TestSendMessage_ManyConcurrentSenders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const members, perMember = 20, 10
	others := make([]string, 0, members-1)
	for i := 1; i < members; i++ {
		id := fmt.Sprintf("student-%02d", i)
		f.addUser(t, id, true)
		others = append(others, id)
	}
	g, err := f.svc.CreateGroup(ctx, "alice", GroupInput{Name: "Lecture", Participants: others})
	if err != nil {
		t.Fatal(err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, sender := range g.Participants {
		wg.Add(1)
		go func(sender string) {
			defer wg.Done()
			for i := 0; i < perMember; i++ {
				if _, err := f.svc.SendMessage(ctx, SendInput{ConversationID: g.ID, SenderID: sender, Content: "q"}); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}(sender)
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("%d sends failed, first: %v", len(errs), errs[0])
	}
	v, err := f.svc.GetConversation(ctx, g.ID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if v.LastSeq != members*perMember {
		t.Errorf("lastSeq = %d, want %d", v.LastSeq, members*perMember)
	}
	for _, p := range g.Participants {
		if got := v.UnreadCounts[p]; got != (members-1)*perMember {
			t.Errorf("unread[%s] = %d, want %d", p, got, (members-1)*perMember)
		}
	}
}

func TestGetMessages_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")
	for _, s := range []string{"m1", "m2", "m3", "m4", "m5"} {
		f.send(t, c, "alice", s)
	}

	tests := []struct {
		name    string
		q       MessageQuery
		want    string
		hasMore bool
	}{
		{"page 1", MessageQuery{Page: 1, Limit: 2}, "m4,m5", true},
		{"page 2", MessageQuery{Page: 2, Limit: 2}, "m2,m3", true},
		{"page 3", MessageQuery{Page: 3, Limit: 2}, "m1", false},
		{"page 4", MessageQuery{Page: 4, Limit: 2}, "", false},
		{"before", MessageQuery{Before: 3, Limit: 5}, "m1,m2", false},
		{"after", MessageQuery{After: 3, Limit: 1}, "m4", true},
		{"default limit", MessageQuery{}, "m1,m2,m3,m4,m5", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.svc.GetMessages(ctx, c, "bob", tt.q)
			if err != nil {
				t.Fatal(err)
			}
			if got := strings.Join(contents(page.Messages), ","); got != tt.want {
				t.Errorf("messages = %q, want %q", got, tt.want)
			}
			if page.HasMore != tt.hasMore {
				t.Errorf("hasMore = %v, want %v", page.HasMore, tt.hasMore)
			}
		})
	}

	if _, err := f.svc.GetMessages(ctx, c, "carol", MessageQuery{}); !errors.Is(err, ErrNotMember) {
		t.Errorf("outsider read error = %v", err)
	}
}

func TestDeleteMessage_TombstoneKeepsPosition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")
	f.send(t, c, "alice", "first")
	target := f.send(t, c, "alice", "secret plan")
	reply, err := f.svc.SendMessage(ctx, SendInput{ConversationID: c, SenderID: "bob", Content: "nice", ReplyTo: target.ID})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.DeleteMessage(ctx, target.ID, "bob", false); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-sender delete error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.DeleteMessage(ctx, target.ID, "carol", false); !errors.Is(err, ErrNotMember) {
		t.Errorf("outsider delete error = %v, want ErrNotMember", err)
	}

	f.pub.take()
	deleted, err := f.svc.DeleteMessage(ctx, target.ID, "alice", false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.Content != DefaultTombstone || deleted.DeletedAt == nil {
		t.Errorf("deleted = %+v", deleted)
	}
	if ev := f.pub.take(); len(ev) != 1 || ev[0].Event != models.EventMessageDeleted {
		t.Errorf("events = %+v", ev)
	}

	page, _ := f.svc.GetMessages(ctx, c, "bob", MessageQuery{})
	if got := strings.Join(contents(page.Messages), "|"); got != "first|"+DefaultTombstone+"|nice" {
		t.Errorf("messages = %q", got)
	}
	if page.Messages[1].Seq != target.Seq {
		t.Errorf("tombstone seq = %d, want %d", page.Messages[1].Seq, target.Seq)
	}
	if page.Messages[2].ReplyTo != target.ID || reply.ReplyTo != target.ID {
		t.Error("reply lost its reference")
	}

	hits, _ := f.svc.SearchMessages(ctx, c, "alice", "secret", 10)
	if len(hits) != 0 {
		t.Errorf("search returned deleted message: %v", contents(hits))
	}

	if _, err := f.svc.DeleteMessage(ctx, target.ID, "alice", false); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
	if _, err := f.svc.EditMessage(ctx, target.ID, "alice", "edit"); !errors.Is(err, ErrNotFound) {
		t.Errorf("edit of deleted error = %v, want ErrNotFound", err)
	}
}

func TestDeleteMessage_ModeratorAndLastMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")
	m := f.send(t, c, "alice", "spam")

	if _, err := f.svc.DeleteMessage(ctx, m.ID, "dave", true); err != nil {
		t.Fatalf("moderator delete: %v", err)
	}
	v, _ := f.svc.GetConversation(ctx, c, "bob")
	if v.LastMessage.Content != DefaultTombstone {
		t.Errorf("lastMessage content = %q", v.LastMessage.Content)
	}
	if v.UnreadCount != 1 {
		t.Errorf("unread = %d, delete must not touch counters", v.UnreadCount)
	}
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")
	m := f.send(t, c, "alice", "helo")

	if _, err := f.svc.EditMessage(ctx, m.ID, "bob", "hijack"); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-sender edit error = %v", err)
	}
	if _, err := f.svc.EditMessage(ctx, m.ID, "alice", " "); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("empty edit error = %v", err)
	}

	edited, err := f.svc.EditMessage(ctx, m.ID, "alice", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if edited.Content != "hello" || edited.EditedAt == nil || edited.Seq != m.Seq {
		t.Errorf("edited = %+v", edited.Message)
	}
	v, _ := f.svc.GetConversation(ctx, c, "bob")
	if v.LastMessage.Content != "hello" {
		t.Errorf("lastMessage = %q", v.LastMessage.Content)
	}
}

func TestSearchMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")
	f.send(t, c, "alice", "Exam on Monday")
	f.send(t, c, "bob", "which exam?")
	f.send(t, c, "alice", "calculus")

	hits, err := f.svc.SearchMessages(ctx, c, "bob", "EXAM", 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(contents(hits), "|"); got != "which exam?|Exam on Monday" {
		t.Errorf("hits = %q", got)
	}
	if _, err := f.svc.SearchMessages(ctx, c, "bob", "  ", 0); !errors.Is(err, ErrValidation) {
		t.Errorf("empty query error = %v", err)
	}
}

func TestCreateGroupAndParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.CreateGroup(ctx, "alice", GroupInput{Name: " Study Group ", Participants: []string{"bob", "alice", "bob", "carol"}})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(g.Participants, ",") != "alice,bob,carol" {
		t.Errorf("participants = %v", g.Participants)
	}
	if g.GroupAdmin != "alice" || g.GroupName != "Study Group" || !g.IsGroup {
		t.Errorf("group = %+v", g.Conversation)
	}

	if _, err := f.svc.CreateGroup(ctx, "alice", GroupInput{Name: "x", Participants: []string{"zed"}}); !errors.Is(err, ErrInvalidParticipant) {
		t.Errorf("unknown member error = %v", err)
	}
	if _, err := f.svc.CreateGroup(ctx, "alice", GroupInput{Name: ""}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty name error = %v", err)
	}

	if _, err := f.svc.AddParticipant(ctx, g.ID, "bob", "dave"); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-admin add error = %v", err)
	}
	v, err := f.svc.AddParticipant(ctx, g.ID, "alice", "dave")
	if err != nil {
		t.Fatal(err)
	}
	if !v.HasParticipant("dave") {
		t.Error("dave not added")
	}
	if ok, _ := f.svc.IsMember(ctx, g.ID, "dave"); !ok {
		t.Error("IsMember(dave) = false")
	}

	c := f.direct(t, "alice", "bob")
	if _, err := f.svc.AddParticipant(ctx, c, "alice", "carol"); !errors.Is(err, ErrInvalidParticipant) {
		t.Errorf("third participant on direct error = %v, want ErrInvalidParticipant", err)
	}
}

func TestListConversations_OrderingAndArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ab := f.direct(t, "alice", "bob")
	ac := f.direct(t, "alice", "carol")
	ad := f.direct(t, "alice", "dave")

	f.send(t, ab, "bob", "latest")

	views, total, err := f.svc.ListConversations(ctx, "alice", ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("total = %d", total)
	}
	// ab has the newest activity; ad and ac never had messages, newest creation first
	want := []string{ab, ad, ac}
	for i, v := range views {
		if v.ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, v.ID, want[i])
		}
	}
	if views[0].UnreadCount != 1 {
		t.Errorf("unread for alice = %d", views[0].UnreadCount)
	}

	if _, err := f.svc.Archive(ctx, ac, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.SoftDelete(ctx, ad, "alice"); err != nil {
		t.Fatal(err)
	}
	_, total, _ = f.svc.ListConversations(ctx, "alice", ListOptions{})
	if total != 1 {
		t.Errorf("default total = %d, want 1", total)
	}
	_, total, _ = f.svc.ListConversations(ctx, "alice", ListOptions{IncludeArchived: true})
	if total != 2 {
		t.Errorf("with archived total = %d, want 2", total)
	}

	if _, err := f.svc.Unarchive(ctx, ac, "alice"); err != nil {
		t.Fatal(err)
	}
	page, total, _ := f.svc.ListConversations(ctx, "alice", ListOptions{Limit: 1, Offset: 1})
	if total != 2 || len(page) != 1 || page[0].ID != ac {
		t.Errorf("second page = %v total %d", page, total)
	}

	if _, err := f.svc.GetConversation(ctx, ad, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted conversation error = %v", err)
	}
	if _, err := f.svc.Archive(ctx, ab, "carol"); !errors.Is(err, ErrNotMember) {
		t.Errorf("outsider archive error = %v", err)
	}
}

func TestUnreadCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ab := f.direct(t, "alice", "bob")
	cb := f.direct(t, "carol", "bob")
	f.send(t, ab, "alice", "1")
	f.send(t, ab, "alice", "2")
	f.send(t, cb, "carol", "3")

	sum, err := f.svc.UnreadCount(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Total != 3 || sum.Conversations[ab] != 2 || sum.Conversations[cb] != 1 {
		t.Errorf("summary = %+v", sum)
	}

	if _, err := f.svc.SoftDelete(ctx, cb, "bob"); err != nil {
		t.Fatal(err)
	}
	sum, _ = f.svc.UnreadCount(ctx, "bob")
	if sum.Total != 2 {
		t.Errorf("total after delete = %d, want 2", sum.Total)
	}
}

func TestStartOrGetConversation_RestoresDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.direct(t, "alice", "bob")
	if _, err := f.svc.SoftDelete(ctx, c, "bob"); err != nil {
		t.Fatal(err)
	}
	v, err := f.svc.StartOrGetConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if v.ID != c || v.Status != models.StatusActive {
		t.Errorf("got %s/%s, want %s/active", v.ID, v.Status, c)
	}
}

func TestErrorMessage(t *testing.T) {
	err := newError(ErrForbidden, "edit message", "only the sender can edit a message")
	if got := Message(err); got != "only the sender can edit a message" {
		t.Errorf("Message() = %q", got)
	}
	if got := err.Error(); got != "edit message: only the sender can edit a message" {
		t.Errorf("Error() = %q", got)
	}
	if Message(errors.New("disk on fire")) != "" {
		t.Error("internal errors must not leak detail")
	}
}
