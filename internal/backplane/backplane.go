// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

// Package backplane carries realtime envelopes between server instances.
//
// Every instance publishes each envelope to one topic and every instance
// subscribes to that topic without a queue group, so all of them see every
// envelope and deliver it to whichever local connections joined the room.
// Two transports are available: an in-process Watermill gochannel for
// single-instance deployments and tests, and NATS core through
// watermill-nats for clusters. Publishing is guarded by a circuit breaker
// so a dead broker fails fast instead of stalling request handlers.
//
// Both transports keep the order of messages published one after another
// by one instance. Nothing orders messages from different instances.
package backplane

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/campusnet/internal/config"
	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/metrics"
)

// Transport modes.
const (
	ModeLocal = "local"
	ModeNATS  = "nats"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("backplane: closed")

	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("backplane: unavailable")
)

// Backplane is a publisher and subscriber pair bound to one topic.
type Backplane struct {
	mode       string
	topic      string
	publisher  message.Publisher
	subscriber message.Subscriber
	breaker    *gobreaker.CircuitBreaker[any]
	health     func(ctx context.Context) error
	closers    []func() error

	mu     sync.RWMutex
	closed bool
}

// New builds the backplane described by cfg. natsURL overrides
// cfg.NATSURL, which is how an embedded server's address is passed in.
func New(cfg config.BackplaneConfig, natsURL string) (*Backplane, error) {
	logger := NewLogger()
	switch cfg.Mode {
	case "", ModeLocal:
		return NewLocal(cfg, logger), nil
	case ModeNATS:
		if natsURL == "" {
			natsURL = cfg.NATSURL
		}
		return newNATS(cfg, natsURL, logger)
	default:
		return nil, fmt.Errorf("unknown backplane mode %q", cfg.Mode)
	}
}

// NewLocal builds an in-process backplane. Every subscriber receives every
// message; nothing leaves the process. Publish returns once every
// subscriber acked, so messages published one after another reach each
// subscriber in that order.
func NewLocal(cfg config.BackplaneConfig, logger watermill.LoggerAdapter) *Backplane {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 256
	}
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            buffer,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: true,
	}, logger)

	b := newBackplane(ModeLocal, cfg, ch, ch)
	b.closers = []func() error{ch.Close}
	return b
}

func newBackplane(mode string, cfg config.BackplaneConfig, pub message.Publisher, sub message.Subscriber) *Backplane {
	topic := cfg.Topic
	if topic == "" {
		topic = "campusnet.chat.fanout"
	}
	return &Backplane{
		mode:       mode,
		topic:      topic,
		publisher:  pub,
		subscriber: sub,
		breaker:    NewCircuitBreaker("backplane-"+mode, cfg.BreakerMaxFailure, cfg.BreakerTimeout),
	}
}

// Mode returns the transport in use.
func (b *Backplane) Mode() string { return b.mode }

// Topic returns the fan-out topic.
func (b *Backplane) Topic() string { return b.topic }

// Publish sends msg on the fan-out topic through the circuit breaker.
func (b *Backplane) Publish(ctx context.Context, msg *message.Message) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.breaker.Execute(func() (any, error) {
		return nil, b.publisher.Publish(b.topic, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// Subscribe returns the stream of messages on the fan-out topic. The
// channel closes when ctx is canceled or the backplane is closed. Each
// message must be acked.
func (b *Backplane) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	msgs, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", b.topic, err)
	}
	return msgs, nil
}

// Ping reports whether the transport is usable.
func (b *Backplane) Ping(ctx context.Context) error {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if b.breaker.State() == gobreaker.StateOpen {
		return ErrUnavailable
	}
	if b.health != nil {
		return b.health(ctx)
	}
	return nil
}

// BreakerState returns the circuit breaker state name.
func (b *Backplane) BreakerState() string {
	return b.breaker.State().String()
}

// Close shuts down the publisher, the subscriber and any connection.
func (b *Backplane) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	var errs []error
	for _, c := range b.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	logging.Info().Str("mode", b.mode).Msg("Backplane closed")
	return errors.Join(errs...)
}

// NewCircuitBreaker creates the publish breaker. It opens after
// maxFailures consecutive failures and probes again after timeout.
func NewCircuitBreaker(name string, maxFailures uint32, timeout time.Duration) *gobreaker.CircuitBreaker[any] {
	if maxFailures == 0 {
		maxFailures = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metrics.BackplaneBreakerState.Set(0)
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BackplaneBreakerState.Set(breakerGauge(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Backplane circuit breaker state changed")
		},
	})
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// NewLogger adapts the process logger for Watermill.
func NewLogger() watermill.LoggerAdapter {
	return watermill.NewSlogLogger(logging.NewSlogLogger().With("component", "backplane"))
}
