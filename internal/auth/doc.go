// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package auth validates access tokens issued by the campus identity
// service and exposes the authenticated user to handlers.
//
// Tokens are HS256 JWTs signed with a secret shared with the identity
// service. Login, registration and token refresh live there; this package
// only checks tokens.
package auth
