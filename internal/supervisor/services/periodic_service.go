// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package services

import (
	"context"
	"time"

	"github.com/tomtom215/campusnet/internal/logging"
)

// PeriodicFunc is one run of a maintenance task.
type PeriodicFunc func(ctx context.Context) error

// PeriodicService runs fn every interval until the context is canceled.
//
// A failing run is logged and retried on the next tick; maintenance
// failures never restart the data layer. Used for store value-log GC and
// for purging expired directory cache entries.
type PeriodicService struct {
	name     string
	interval time.Duration
	fn       PeriodicFunc
}

// NewPeriodicService creates a periodic task. A non-positive interval
// means one minute.
func NewPeriodicService(name string, interval time.Duration, fn PeriodicFunc) *PeriodicService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PeriodicService{name: name, interval: interval, fn: fn}
}

// Serve implements suture.Service.
func (p *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

func (p *PeriodicService) run(ctx context.Context) {
	start := time.Now()
	if err := p.fn(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Warn().Err(err).Str("task", p.name).Msg("periodic task failed")
		return
	}
	logging.Debug().
		Str("task", p.name).
		Dur("duration", time.Since(start)).
		Msg("periodic task completed")
}

// String implements fmt.Stringer.
func (p *PeriodicService) String() string {
	return p.name
}
