// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"net/http"
	"testing"
	"time"
)

func TestSyncUser_RequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	body := SyncUserRequest{DisplayName: "Erin", Approved: true}

	tests := []struct {
		role   string
		status int
	}{
		{"student", http.StatusForbidden},
		{"moderator", http.StatusForbidden},
		{"service", http.StatusOK},
		{"admin", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			res := env.do(t, http.MethodPut, "/api/v1/users/erin", "identity", tt.role, body)
			if res.status != tt.status {
				t.Errorf("status = %d, want %d", res.status, tt.status)
			}
		})
	}
}

func TestSyncUser_ApprovalGatesConversations(t *testing.T) {
	env := newTestEnv(t)

	res := env.as(t, http.MethodPost, "/api/v1/chat/start", "alice", StartConversationRequest{UserID: "pending"})
	if res.errorCode() != ErrCodeInvalidParticipant {
		t.Fatalf("unapproved start = %d %s", res.status, res.errorCode())
	}

	res = env.do(t, http.MethodPut, "/api/v1/users/pending", "identity", "service", SyncUserRequest{
		DisplayName: "Now Approved",
		AvatarURL:   "https://cdn.campus.example/p.png",
		Approved:    true,
	})
	if res.status != http.StatusOK {
		t.Fatalf("sync: %d %+v", res.status, res.body.Error)
	}
	var synced SyncUserResponse
	res.decode(t, &synced)
	if !synced.Applied || !synced.Profile.Approved {
		t.Errorf("sync response = %+v", synced)
	}

	convID := env.startDirect(t, "alice", "pending")
	if convID == "" {
		t.Fatal("expected a conversation")
	}
}

func TestSyncUser_StaleRevisionIgnored(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()

	res := env.do(t, http.MethodPut, "/api/v1/users/frank", "identity", "service", SyncUserRequest{
		DisplayName: "Frank", Approved: true, UpdatedAt: now,
	})
	if res.status != http.StatusOK {
		t.Fatalf("sync: %d", res.status)
	}

	res = env.do(t, http.MethodPut, "/api/v1/users/frank", "identity", "service", SyncUserRequest{
		DisplayName: "Frank (old)", Approved: false, UpdatedAt: now.Add(-time.Hour),
	})
	var synced SyncUserResponse
	res.decode(t, &synced)
	if synced.Applied {
		t.Error("older revision should not be applied")
	}
	// still approved
	env.startDirect(t, "alice", "frank")
}

func TestSyncUser_Validation(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodPut, "/api/v1/users/grace", "identity", "service", SyncUserRequest{AvatarURL: "not a url"})
	if res.status != http.StatusBadRequest || res.errorCode() != ErrCodeValidation {
		t.Errorf("invalid body = %d %s", res.status, res.errorCode())
	}
	res = env.do(t, http.MethodPut, "/api/v1/users/bad%20id", "identity", "service", SyncUserRequest{DisplayName: "x"})
	if res.status != http.StatusBadRequest {
		t.Errorf("invalid id = %d", res.status)
	}
}
