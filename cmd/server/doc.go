// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

/*
Package main is the entry point for the Campusnet messaging server.

The server holds the direct and group conversations of the campus social
network: it persists conversations and messages in Badger, exposes them over
a REST API under /api/v1, and pushes new messages, read state and typing
indicators to connected browsers over a WebSocket endpoint. Several
instances can run behind a load balancer; room events reach every instance
through a NATS backplane.

# Application Architecture

	RootSupervisor ("campusnet")
	├── DataSupervisor ("data-layer")
	│   ├── store-gc (Badger value-log GC)
	│   └── directory-purge (profile cache expiry)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── nats-server (only with NATS_EMBEDDED=true)
	│   ├── websocket-hub
	│   └── websocket-bridge (backplane -> hub)
	└── APISupervisor ("api-layer")
	    └── http-server (chi router)

Component initialization order:

 1. Configuration: koanf with defaults, optional YAML file, environment
 2. Logging: zerolog with JSON or console output
 3. Store: Badger database for conversations, messages and profiles
 4. Directory: cached user profiles synced from the identity service
 5. Files: optional S3 resolver for image and file attachments
 6. Backplane: in-process channel or NATS, optionally with an embedded server
 7. Chat service, WebSocket hub and gateway
 8. Authentication (JWT) and authorization (Casbin)
 9. Supervisor tree and HTTP server

# Configuration

Environment variables override the config file (CONFIG_PATH):

	HTTP_PORT=5080
	LOG_LEVEL=info               # trace, debug, info, warn, error
	LOG_FORMAT=json              # json or console
	JWT_SECRET=<32+ chars>       # shared with the identity service
	STORE_PATH=/data/chat
	BACKPLANE_MODE=local         # local or nats
	NATS_URL=nats://nats:4222
	NATS_EMBEDDED=false
	FILES_ENABLED=false
	FILES_BUCKET=campus-uploads

# Signal Handling

SIGINT and SIGTERM cancel the supervisor tree: WebSocket clients are
disconnected, in-flight HTTP requests drain for SHUTDOWN_TIMEOUT, then the
backplane and store are closed.
*/
package main
