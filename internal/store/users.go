// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/campusnet/internal/models"
)

// Profile loads a user profile by id.
func (t *Txn) Profile(id string) (*models.UserProfile, error) {
	var p models.UserProfile
	if err := t.getJSON(userKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PutProfile writes a user profile.
func (t *Txn) PutProfile(p *models.UserProfile) error {
	if err := t.requireUpdate(); err != nil {
		return err
	}
	if p.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	return t.setJSON(userKey(p.ID), p)
}

// Profile is a convenience read of one profile outside a caller transaction.
func (s *Store) Profile(ctx context.Context, id string) (*models.UserProfile, error) {
	var p *models.UserProfile
	err := s.View(ctx, func(tx *Txn) error {
		var err error
		p, err = tx.Profile(id)
		return err
	})
	return p, err
}

// UpsertProfile stores p unless a newer revision is already present.
// It reports whether p was written.
func (s *Store) UpsertProfile(ctx context.Context, p *models.UserProfile) (bool, error) {
	written := false
	err := s.Update(ctx, func(tx *Txn) error {
		written = false
		existing, err := tx.Profile(p.ID)
		if err == nil && existing.UpdatedAt.After(p.UpdatedAt) {
			return nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		written = true
		return tx.PutProfile(p)
	})
	return written, err
}
