// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package store persists conversations, messages and user profiles in
// BadgerDB.
//
// All mutations run inside Store.Update, which wraps one Badger
// read-write transaction. Badger transactions are serializable: two
// writers that read and write the same conversation record conflict, and
// the loser is retried from a fresh snapshot. That is what makes unread
// increments atomic and lets a message append commit together with the
// conversation's lastMessage and counters.
//
// Key layout:
//
//	conv:<id>                     conversation JSON
//	pair:<lo>\x00<hi>             id of the direct conversation between two users
//	member:<user>\x00<conv>       membership index (empty value)
//	msg:<conv>:<seq %020d>        message JSON, ordered by seq
//	msgid:<id>                    message key, for lookup by id
//	user:<id>                     user profile JSON
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/metrics"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicate is returned when a unique index entry already exists.
	ErrDuplicate = errors.New("store: duplicate")

	// ErrConflict is returned when a transaction kept conflicting after
	// all retries.
	ErrConflict = errors.New("store: transaction conflict")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// Options configures Open.
type Options struct {
	Path         string
	InMemory     bool
	SyncWrites   bool
	MemTableSize int64

	// MaxRetries bounds how often a conflicting update is run in total.
	MaxRetries int
}

// DefaultMaxRetries is used when Options.MaxRetries is not set.
const DefaultMaxRetries = 64

// Conflict backoff bounds. The first retry waits about a millisecond; the
// jitter spreads writers that collided on the same conversation.
const (
	conflictInitialInterval = time.Millisecond
	conflictMaxInterval     = 100 * time.Millisecond
	conflictMaxElapsed      = 30 * time.Second
)

// Store is the Badger-backed Conversation Store and Message Store.
type Store struct {
	db         *badger.DB
	maxRetries int
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, fmt.Errorf("store path is required")
		}
		bopts = badger.DefaultOptions(opts.Path)
		bopts.SyncWrites = opts.SyncWrites
		bopts.Compression = options.Snappy
	}
	if opts.MemTableSize > 0 {
		bopts.MemTableSize = opts.MemTableSize
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	retries := opts.MaxRetries
	if retries < 1 {
		retries = DefaultMaxRetries
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Bool("sync_writes", opts.SyncWrites).
		Msg("Chat store opened")

	return &Store{db: db, maxRetries: retries}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	logging.Info().Msg("Closing chat store")
	return s.db.Close()
}

// Ping reports whether the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.View(ctx, func(*Txn) error { return nil })
}

// Update runs fn inside a read-write transaction and commits it. When the
// commit conflicts with a concurrent writer, fn is run again against a
// fresh snapshot after a jittered exponential backoff, so fn must derive
// every write from what it reads through the Txn. Errors returned by fn
// are never retried.
func (s *Store) Update(ctx context.Context, fn func(*Txn) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreTxn("update", time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		if s.db.IsClosed() {
			return struct{}{}, backoff.Permanent(ErrClosed)
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return fn(&Txn{txn: txn, update: true})
		})
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, badger.ErrConflict):
			metrics.StoreConflicts.Inc()
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(newConflictBackOff()),
		backoff.WithMaxTries(uint(s.maxRetries)),
		backoff.WithMaxElapsedTime(conflictMaxElapsed),
		backoff.WithNotify(func(_ error, next time.Duration) {
			logging.Ctx(ctx).Debug().
				Int("attempt", attempts).
				Dur("backoff", next).
				Msg("Store transaction conflict, retrying")
		}),
	)

	// the last attempt returns its error still wrapped
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w after %d attempts", ErrConflict, attempts)
	}
	return err
}

func newConflictBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = conflictInitialInterval
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxInterval = conflictMaxInterval
	return b
}

// View runs fn inside a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(*Txn) error) error {
	start := time.Now()
	defer func() { metrics.RecordStoreTxn("view", time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
}

// RunGC reclaims value log space until Badger reports nothing to rewrite.
func (s *Store) RunGC(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run value log GC: %w", err)
		}
	}
}
