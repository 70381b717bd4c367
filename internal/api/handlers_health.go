// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/tomtom215/campusnet/internal/logging"
)

// readinessTimeout bounds each readiness probe.
const readinessTimeout = 2 * time.Second

// HealthLive reports that the process is running. It never touches
// dependencies, so orchestrators only restart a wedged process.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status":  "alive",
		"version": h.version,
		"uptime":  time.Since(h.startTime).Seconds(),
	})
}

// HealthReady reports whether every dependency answers. It returns 503
// with the failing checks so load balancers stop routing to the instance.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	results := make(map[string]string, len(h.checks))
	ready := true
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			ready = false
			results[c.Name] = err.Error()
			logging.Ctx(r.Context()).Warn().Err(err).Str("check", c.Name).Msg("Readiness check failed")
			continue
		}
		results[c.Name] = "ok"
	}

	if !ready {
		rw.ServiceUnavailable("service not ready", results)
		return
	}
	rw.Success(map[string]interface{}{
		"status": "ready",
		"checks": results,
	})
}
