// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package chat

import (
	"context"

	"github.com/tomtom215/campusnet/internal/models"
)

// UserDirectory resolves user ids to display profiles. Lookup returns an
// error matching ErrUnknownUser when the user does not exist.
type UserDirectory interface {
	Lookup(ctx context.Context, userID string) (*models.UserProfile, error)
}

// FileResolver turns an uploaded object key into the file fields of a
// message. Unknown or unacceptable keys should be reported with Invalid.
type FileResolver interface {
	Resolve(ctx context.Context, key string) (*models.FileMeta, error)
}

// Publisher delivers a realtime event to every connection in room, on any
// instance. Implementations must not wait for delivery.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, any) error { return nil }
