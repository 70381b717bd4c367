// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/campusnet/internal/auth"
	"github.com/tomtom215/campusnet/internal/authz"
	"github.com/tomtom215/campusnet/internal/backplane"
	"github.com/tomtom215/campusnet/internal/chat"
	"github.com/tomtom215/campusnet/internal/config"
	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
	"github.com/tomtom215/campusnet/internal/store"
	"github.com/tomtom215/campusnet/internal/websocket"
)

func init() {
	logging.Init(logging.Config{Level: "disabled"})
}

const testSecret = "test-secret-with-enough-entropy-for-hs256"

// testEnv is a single API instance backed by an in-memory store and a
// local backplane.
type testEnv struct {
	handler http.Handler
	jwt     *auth.JWTManager
	chat    *chat.Service
	hub     *websocket.Hub
	bp      *backplane.Backplane
}

type envOption func(*HandlerDeps)

func withChecks(checks ...HealthCheck) envOption {
	return func(d *HandlerDeps) { d.Checks = checks }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	st, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	bp := backplane.NewLocal(config.BackplaneConfig{}, nil)
	t.Cleanup(func() { _ = bp.Close() })

	dir := chat.NewDirectory(st, 100, time.Minute)
	hub := websocket.NewHub("api-test")
	broadcaster := websocket.NewBroadcaster(bp, hub.InstanceID())
	svc := chat.NewService(st, dir, nil, broadcaster, chat.DefaultOptions())

	for _, u := range []string{"alice", "bob", "carol", "dave"} {
		if _, err := dir.Upsert(context.Background(), &models.UserProfile{ID: u, DisplayName: u, Approved: true}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := dir.Upsert(context.Background(), &models.UserProfile{ID: "pending", DisplayName: "Pending"}); err != nil {
		t.Fatal(err)
	}

	jwtManager, err := auth.NewJWTManager(&config.SecurityConfig{JWTSecret: testSecret})
	if err != nil {
		t.Fatal(err)
	}
	enforcer, err := authz.NewEnforcer(nil)
	if err != nil {
		t.Fatal(err)
	}
	authzMiddleware := authz.NewMiddleware(enforcer, Denied)

	wsRouter := websocket.NewRouter(hub, svc, broadcaster)
	gateway := websocket.NewGateway(hub, wsRouter, websocket.Settings{}, nil)

	deps := HandlerDeps{
		Chat:      svc,
		Directory: dir,
		Authz:     authzMiddleware,
		Gateway:   gateway,
		Version:   "test",
	}
	mwConfig := DefaultChiMiddlewareConfig()
	mwConfig.RateLimitDisabled = true
	for _, o := range opts {
		o(&deps)
	}

	router := NewRouter(
		NewHandler(deps),
		auth.NewMiddleware(jwtManager, "token", Unauthorized),
		authzMiddleware,
		NewChiMiddleware(mwConfig),
	)

	return &testEnv{
		handler: router.SetupChi(),
		jwt:     jwtManager,
		chat:    svc,
		hub:     hub,
		bp:      bp,
	}
}

func (e *testEnv) token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := e.jwt.GenerateToken(userID, role, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

// envelope is APIResponse with the payload left raw for the caller.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

type result struct {
	status int
	header http.Header
	body   envelope
}

func (r result) decode(t *testing.T, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(r.body.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", r.body.Data, err)
	}
}

func (r result) errorCode() string {
	if r.body.Error == nil {
		return ""
	}
	return r.body.Error.Code
}

// do sends a request as userID with the given role. An empty userID sends
// no token.
func (e *testEnv) do(t *testing.T, method, path, userID, role string, body interface{}) result {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID, role))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	res := result{status: w.Code, header: w.Header()}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &res.body); err != nil {
			t.Fatalf("%s %s: invalid body %q: %v", method, path, w.Body.String(), err)
		}
	}
	return res
}

func (e *testEnv) as(t *testing.T, method, path, userID string, body interface{}) result {
	t.Helper()
	return e.do(t, method, path, userID, "student", body)
}

func (e *testEnv) startDirect(t *testing.T, a, b string) string {
	t.Helper()
	res := e.as(t, http.MethodPost, "/api/v1/chat/start", a, StartConversationRequest{UserID: b})
	if res.status != http.StatusOK {
		t.Fatalf("start %s/%s: %d %+v", a, b, res.status, res.body.Error)
	}
	var view models.ConversationView
	res.decode(t, &view)
	return view.ID
}

func (e *testEnv) send(t *testing.T, convID, sender, content string) models.MessageView {
	t.Helper()
	res := e.as(t, http.MethodPost, "/api/v1/chat/"+convID+"/messages", sender, SendMessageRequest{Content: content})
	if res.status != http.StatusCreated {
		t.Fatalf("send: %d %+v", res.status, res.body.Error)
	}
	var msg models.MessageView
	res.decode(t, &msg)
	return msg
}

func (e *testEnv) unread(t *testing.T, userID string) chat.UnreadSummary {
	t.Helper()
	res := e.as(t, http.MethodGet, "/api/v1/chat/unread/count", userID, nil)
	if res.status != http.StatusOK {
		t.Fatalf("unread: %d %+v", res.status, res.body.Error)
	}
	var summary chat.UnreadSummary
	res.decode(t, &summary)
	return summary
}

// readySubscriber signals once the bridge has subscribed.
type readySubscriber struct {
	websocket.FanoutSubscriber
	ready chan struct{}
}

func (s readySubscriber) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	ch, err := s.FanoutSubscriber.Subscribe(ctx)
	close(s.ready)
	return ch, err
}

// startBridge runs the backplane bridge until the test ends.
func (e *testEnv) startBridge(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sub := readySubscriber{FanoutSubscriber: e.bp, ready: make(chan struct{})}
	go func() { _ = websocket.NewBridge(sub, e.hub).Serve(ctx) }()
	select {
	case <-sub.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not subscribe")
	}
}
