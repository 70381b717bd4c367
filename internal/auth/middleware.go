// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tomtom215/campusnet/internal/logging"
)

type contextKey string

// ClaimsContextKey holds the *Claims of an authenticated request.
const ClaimsContextKey contextKey = "claims"

var (
	errMissingToken = errors.New("unauthorized: missing token")
	errBadHeader    = errors.New("unauthorized: invalid authorization header")
)

// UnauthorizedFunc writes the response for a rejected request.
type UnauthorizedFunc func(w http.ResponseWriter, r *http.Request, message string)

// Middleware authenticates requests with tokens from the identity service.
type Middleware struct {
	jwtManager   *JWTManager
	cookieName   string
	unauthorized UnauthorizedFunc
}

// NewMiddleware creates the middleware. Tokens are read from the
// Authorization header, then the cookieName cookie, then the "token" query
// parameter, which browsers need for websocket handshakes.
func NewMiddleware(jwtManager *JWTManager, cookieName string, unauthorized UnauthorizedFunc) *Middleware {
	if cookieName == "" {
		cookieName = "token"
	}
	if unauthorized == nil {
		unauthorized = func(w http.ResponseWriter, _ *http.Request, message string) {
			http.Error(w, message, http.StatusUnauthorized)
		}
	}
	return &Middleware{
		jwtManager:   jwtManager,
		cookieName:   cookieName,
		unauthorized: unauthorized,
	}
}

// Authenticate rejects requests without a valid token and stores the
// claims in the request context.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := m.extractToken(r)
		if err != nil {
			m.unauthorized(w, r, err.Error())
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Ctx(r.Context()).Debug().Err(err).Msg("Token validation failed")
			m.unauthorized(w, r, "unauthorized: invalid token")
			return
		}

		ctx := WithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", errBadHeader
		}
		return parts[1], nil
	}
	if cookie, err := r.Cookie(m.cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	return "", errMissingToken
}

// WithClaims stores claims in ctx along with the user id used by context
// loggers.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	ctx = context.WithValue(ctx, ClaimsContextKey, claims)
	return logging.ContextWithUserID(ctx, claims.Principal())
}

// ClaimsFromContext returns the claims of an authenticated request.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Principal()
	}
	return ""
}
