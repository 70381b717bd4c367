// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/campusnet/internal/auth"
	"github.com/tomtom215/campusnet/internal/authz"
	"github.com/tomtom215/campusnet/internal/middleware"
)

// Router wires handlers and middleware into a chi router.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a new router.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, authzMiddleware *authz.Middleware, chiMiddleware *ChiMiddleware) *Router {
	if chiMiddleware == nil {
		chiMiddleware = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		auth:          authMiddleware,
		authz:         authzMiddleware,
		chiMiddleware: chiMiddleware,
	}
}

// Unauthorized writes a 401 in the API envelope. It is the
// auth.UnauthorizedFunc used by the server.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	NewResponseWriter(w, r).Unauthorized(message)
}

// Denied writes an authorization failure in the API envelope. It is the
// authz.DeniedFunc used by the server.
func Denied(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status == http.StatusForbidden {
		NewResponseWriter(w, r).Forbidden(message)
		return
	}
	NewResponseWriter(w, r).InternalError(message)
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied in order
	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(AccessLog())
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/health", func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
			r.Use(APISecurityHeaders())
			r.Get("/live", router.handler.HealthLive)
			r.Get("/ready", router.handler.HealthReady)
		})

		// Websocket upgrades skip the metrics wrapper; connection counts
		// are tracked by the hub.
		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket))
			r.Use(router.auth.Authenticate)
			r.Get("/ws", router.handler.WebSocket)
		})

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(APISecurityHeaders())
			r.Use(middleware.PrometheusMetrics)
			r.Use(router.auth.Authenticate)

			r.Route("/chat", router.chatRoutes)

			r.With(router.authz.Authorize(authz.ObjectUsers, authz.ActionSync)).
				Put("/users/{userId}", router.handler.SyncUser)
		})
	})

	return r
}

func (router *Router) chatRoutes(r chi.Router) {
	read := router.authz.Authorize(authz.ObjectConversations, authz.ActionRead)
	write := router.authz.Authorize(authz.ObjectConversations, authz.ActionWrite)
	send := router.authz.Authorize(authz.ObjectMessages, authz.ActionSend)
	sendLimit := router.chiMiddleware.RateLimitByUser(RateLimitSend)

	r.With(read).Get("/", router.handler.ListConversations)
	r.With(read).Get("/unread/count", router.handler.UnreadCount)
	r.With(write).Post("/start", router.handler.StartConversation)
	r.With(write).Post("/groups", router.handler.CreateGroup)

	r.With(send).Patch("/messages/{messageId}", router.handler.EditMessage)
	// ownership or the moderate permission is checked by the handler
	r.With(send).Delete("/messages/{messageId}", router.handler.DeleteMessage)

	r.Route("/{conversationId}", func(r chi.Router) {
		r.With(read).Get("/", router.handler.GetConversation)
		r.With(write).Delete("/", router.handler.DeleteConversation)
		r.With(write).Put("/archive", router.handler.ArchiveConversation)
		r.With(write).Put("/unarchive", router.handler.UnarchiveConversation)
		r.With(write).Put("/read", router.handler.MarkRead)
		r.With(write).Post("/participants", router.handler.AddParticipant)

		r.With(read).Get("/messages", router.handler.GetMessages)
		r.With(send, sendLimit).Post("/messages", router.handler.SendMessage)
		r.With(read).Get("/messages/search", router.handler.SearchMessages)
	})
}
