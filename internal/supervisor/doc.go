// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

/*
Package supervisor provides process supervision for Campusnet using suture v4.

Every long-running component of the server runs inside a hierarchical
supervisor tree with automatic restart, failure isolation, and graceful
shutdown:

	RootSupervisor ("campusnet")
	├── DataSupervisor ("data-layer")
	│   ├── PeriodicService "store-gc"
	│   └── PeriodicService "directory-purge"
	├── MessagingSupervisor ("messaging-layer")
	│   ├── EmbeddedNATSService (if backplane.embedded_server)
	│   ├── WebSocketHubService
	│   └── websocket.Bridge
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A bridge that cannot reach the backplane keeps restarting with backoff while
REST requests continue to be served. Supervisor events are logged through
sutureslog.

# Usage

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewPeriodicService("store-gc", time.Minute, st.RunGC))
	tree.AddMessagingService(services.NewWebSocketHubService(hub))
	tree.AddMessagingService(bridge)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

See the services subpackage for the wrappers that adapt components to
suture.Service.
*/
package supervisor
