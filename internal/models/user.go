// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package models

import "time"

// UserProfile is the subset of an identity record the messaging service needs.
// Profiles are pushed by the identity service and cached locally.
type UserProfile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Approved    bool      `json:"approved"` // only approved users can be messaged
	UpdatedAt   time.Time `json:"updatedAt"`
}
