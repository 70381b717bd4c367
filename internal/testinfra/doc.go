// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package testinfra provides container-backed infrastructure for
// integration tests.
//
// The NATSContainer runs a standalone NATS server so that several backplane
// instances in one test behave like separate Campusnet nodes:
//
//	nc, err := testinfra.NewNATSContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, nc.Container)
//
// Everything here is behind the integration build tag and skips when Docker
// is unavailable:
//
//	go test -tags integration ./internal/testinfra/...
package testinfra
