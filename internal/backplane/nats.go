// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package backplane

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/campusnet/internal/config"
)

// newNATS connects a core NATS publisher and subscriber. JetStream is
// deliberately off: envelopes are ephemeral and an instance that was down
// recovers state by fetching, not by replay.
func newNATS(cfg config.BackplaneConfig, url string, logger watermill.LoggerAdapter) (*Backplane, error) {
	if url == "" {
		return nil, errors.New("backplane: NATS URL is required")
	}

	opts := natsOptions(cfg, logger)

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: append(opts, natsgo.Name("campusnet-publisher")),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	// no queue group: every instance must see every envelope
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: "",
		SubscribersCount: 1,
		AckWaitTimeout:   5 * time.Second,
		CloseTimeout:     5 * time.Second,
		NatsOptions:      append(opts, natsgo.Name("campusnet-subscriber")),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	// a separate connection reports broker health without touching the
	// publish path
	monitor, err := natsgo.Connect(url, append(opts, natsgo.Name("campusnet-health"))...)
	if err != nil {
		_ = sub.Close()
		_ = pub.Close()
		return nil, fmt.Errorf("connect NATS monitor: %w", err)
	}

	b := newBackplane(ModeNATS, cfg, pub, sub)
	b.health = func(ctx context.Context) error {
		if !monitor.IsConnected() {
			return fmt.Errorf("NATS %s", monitor.Status())
		}
		timeout := 2 * time.Second
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		if err := monitor.FlushTimeout(timeout); err != nil {
			return fmt.Errorf("NATS flush: %w", err)
		}
		return nil
	}
	b.closers = []func() error{
		sub.Close,
		pub.Close,
		func() error { monitor.Close(); return nil },
	}
	logger.Info("Backplane connected to NATS", watermill.LogFields{"url": url, "topic": b.topic})
	return b, nil
}

func natsOptions(cfg config.BackplaneConfig, logger watermill.LoggerAdapter) []natsgo.Option {
	maxReconnects := cfg.MaxReconnects
	if maxReconnects == 0 {
		maxReconnects = -1
	}
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(maxReconnects),
		natsgo.ReconnectWait(wait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
		natsgo.ErrorHandler(func(nc *natsgo.Conn, sub *natsgo.Subscription, err error) {
			fields := watermill.LogFields{}
			if sub != nil {
				fields["subject"] = sub.Subject
			}
			logger.Error("NATS error", err, fields)
		}),
	}
}
