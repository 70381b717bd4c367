// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package authz

import (
	"context"
	"net/http"

	"github.com/tomtom215/campusnet/internal/auth"
	"github.com/tomtom215/campusnet/internal/logging"
)

// DeniedFunc writes the response for a request that fails authorization.
// status is 403 for a denial and 500 when enforcement itself failed.
type DeniedFunc func(w http.ResponseWriter, r *http.Request, status int, message string)

// Middleware provides authorization middleware using Casbin.
type Middleware struct {
	enforcer *Enforcer
	denied   DeniedFunc
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer, denied DeniedFunc) *Middleware {
	if denied == nil {
		denied = func(w http.ResponseWriter, _ *http.Request, status int, message string) {
			http.Error(w, message, status)
		}
	}
	return &Middleware{enforcer: enforcer, denied: denied}
}

// Allowed reports whether the authenticated caller in ctx may perform
// action on object.
func (m *Middleware) Allowed(ctx context.Context, object, action string) (bool, error) {
	claims, ok := auth.ClaimsFromContext(ctx)
	if !ok {
		return false, nil
	}
	return m.enforcer.Enforce(claims.Role, object, action)
}

// Authorize is middleware that enforces authorization for a specific object and action.
func (m *Middleware) Authorize(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.ClaimsFromContext(r.Context()); !ok {
				m.denied(w, r, http.StatusForbidden, "no authentication context")
				return
			}

			allowed, err := m.Allowed(r.Context(), object, action)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Authorization error")
				m.denied(w, r, http.StatusInternalServerError, "authorization failed")
				return
			}
			if !allowed {
				m.denied(w, r, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
