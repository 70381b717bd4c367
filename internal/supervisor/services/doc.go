// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

/*
Package services provides suture.Service wrappers for Campusnet components.

Each wrapper translates a component's own lifecycle (ListenAndServe,
RunWithContext, Shutdown, a periodic function) into suture's context-aware
Serve method and implements fmt.Stringer so supervisor events name the
service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Available wrappers:

  - HTTPServerService: *http.Server with graceful shutdown
  - WebSocketHubService: the realtime hub, closing clients on shutdown
  - EmbeddedNATSService: the in-process NATS server used as backplane
  - PeriodicService: a function run on a fixed interval, used for store
    value-log GC and directory cache purging

The websocket.Bridge already implements suture.Service and is added to the
tree directly.
*/
package services
