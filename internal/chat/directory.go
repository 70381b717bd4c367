// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/campusnet/internal/cache"
	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
	"github.com/tomtom215/campusnet/internal/store"
)

// Directory is the UserDirectory backed by the profiles the identity
// service pushes into the store, with an LRU in front of it.
type Directory struct {
	store *store.Store
	cache *cache.LRU[string, models.UserProfile]
}

// NewDirectory creates a Directory caching up to size profiles for ttl.
func NewDirectory(st *store.Store, size int, ttl time.Duration) *Directory {
	return &Directory{
		store: st,
		cache: cache.NewLRU[string, models.UserProfile](size, ttl),
	}
}

// Lookup returns the profile for userID.
func (d *Directory) Lookup(ctx context.Context, userID string) (*models.UserProfile, error) {
	if p, ok := d.cache.Get(userID); ok {
		return &p, nil
	}
	p, err := d.store.Profile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup %s: %w", userID, ErrUnknownUser)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", userID, err)
	}
	d.cache.Add(userID, *p)
	return p, nil
}

// Upsert stores a profile pushed by the identity service. Revisions older
// than the stored one are ignored. It reports whether p was written.
func (d *Directory) Upsert(ctx context.Context, p *models.UserProfile) (bool, error) {
	if p.ID == "" {
		return false, Invalid("sync user", "user id is required")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	written, err := d.store.UpsertProfile(ctx, p)
	if err != nil {
		return false, fmt.Errorf("sync user %s: %w", p.ID, err)
	}
	if written {
		d.cache.Remove(p.ID)
		logging.Ctx(ctx).Debug().Str("user_id", p.ID).Bool("approved", p.Approved).Msg("User profile synced")
	}
	return written, nil
}

// Purge drops expired cache entries.
func (d *Directory) Purge() int {
	return d.cache.CleanupExpired()
}
