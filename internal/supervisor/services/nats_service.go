// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/campusnet/internal/logging"
)

// EmbeddedNATS is satisfied by *backplane.EmbeddedServer.
type EmbeddedNATS interface {
	Shutdown(ctx context.Context) error
	IsRunning() bool
	ClientURL() string
}

// EmbeddedNATSService owns the lifetime of the in-process NATS server.
//
// The server is started before the tree so the backplane can connect during
// wiring; this service only watches it and shuts it down when the messaging
// layer stops. A server that has exited cannot be restarted in place, so
// its death terminates the tree instead of looping through restarts.
type EmbeddedNATSService struct {
	server          EmbeddedNATS
	checkInterval   time.Duration
	shutdownTimeout time.Duration
	name            string
}

// NewEmbeddedNATSService wraps a running embedded server.
func NewEmbeddedNATSService(server EmbeddedNATS, shutdownTimeout time.Duration) *EmbeddedNATSService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EmbeddedNATSService{
		server:          server,
		checkInterval:   5 * time.Second,
		shutdownTimeout: shutdownTimeout,
		name:            "nats-server",
	}
}

// Serve implements suture.Service.
func (s *EmbeddedNATSService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("embedded NATS shutdown failed: %w", err)
			}
			logging.Info().Str("url", s.server.ClientURL()).Msg("embedded NATS server stopped")
			return ctx.Err()

		case <-ticker.C:
			if !s.server.IsRunning() {
				logging.Error().Str("url", s.server.ClientURL()).Msg("embedded NATS server stopped unexpectedly")
				return suture.ErrTerminateSupervisorTree
			}
		}
	}
}

// String implements fmt.Stringer.
func (s *EmbeddedNATSService) String() string {
	return s.name
}
