// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

/*
Package api provides the HTTP surface of the messaging service.

All routes live under /api/v1 and, except the health probes, require a
token issued by the identity service. Responses use one envelope:

	{"success": true, "data": {...}, "meta": {"requestId": "...", "timestamp": "..."}}
	{"success": false, "error": {"code": "FORBIDDEN", "message": "..."}}

Chat service errors map to status codes as follows:

	validation failure      400 VALIDATION_ERROR
	invalid participant     400 INVALID_PARTICIPANT
	not a member, forbidden 403 FORBIDDEN
	unknown or deleted      404 NOT_FOUND
	anything else           500 INTERNAL_ERROR

Routes:

	GET    /chat                              list conversations
	POST   /chat/start                        start or get a direct conversation
	POST   /chat/groups                       create a group
	GET    /chat/unread/count                 unread totals
	GET    /chat/{conversationId}             one conversation
	DELETE /chat/{conversationId}             hide a conversation
	PUT    /chat/{conversationId}/archive     archive
	PUT    /chat/{conversationId}/unarchive   unarchive
	PUT    /chat/{conversationId}/read        mark all messages read
	POST   /chat/{conversationId}/participants add a group member
	GET    /chat/{conversationId}/messages    page of messages
	POST   /chat/{conversationId}/messages    send a message
	GET    /chat/{conversationId}/messages/search
	PATCH  /chat/messages/{messageId}         edit own message
	DELETE /chat/messages/{messageId}         delete own message, or any as moderator
	PUT    /users/{userId}                    profile sync from the identity service
	GET    /ws                                realtime websocket
	GET    /health/live, /health/ready
*/
package api
