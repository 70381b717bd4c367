// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

/*
Package websocket provides the realtime side of chat.

Each instance runs one Hub holding its local room subscriptions: the
personal room "user:<id>" of every connected user and the
"conversation:<id>" rooms that connections joined explicitly. Nothing about
rooms persists; a reconnecting client joins again.

Events never go straight from a request handler to a socket. The
Broadcaster wraps each event in a models.Envelope and publishes it on the
backplane; the Bridge on every instance (the publishing one included)
receives it and calls Hub.Deliver, which writes to whichever local
connections are in the room. A single-instance deployment uses the
in-process backplane and behaves the same way.

Events a process publishes one after another reach every client in that
order: the in-process backplane hands over one message at a time and NATS
keeps the order of one connection. The chat service publishes the
new_message events of one conversation while holding that conversation's
write lock, so one instance emits them in seq order. Events of the same
conversation sent through different instances may interleave; clients
order messages by seq.

Frames in both directions are JSON objects of the form

	{"event": "join_conversation", "data": {"conversationId": "..."}}

Inbound events are rate limited per connection. Typing signals are only
relayed for rooms the connection has joined and never echo back to the
sending connection.
*/
package websocket
