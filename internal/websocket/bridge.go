// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package websocket

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/models"
)

// ErrSubscriptionClosed is returned by Serve when the backplane closes the
// subscription while the context is still live.
var ErrSubscriptionClosed = errors.New("websocket: backplane subscription closed")

// FanoutSubscriber streams messages from the fan-out topic.
type FanoutSubscriber interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// Bridge feeds envelopes from the backplane into the local hub.
type Bridge struct {
	subscriber FanoutSubscriber
	hub        *Hub
}

// NewBridge creates a bridge.
func NewBridge(subscriber FanoutSubscriber, hub *Hub) *Bridge {
	return &Bridge{subscriber: subscriber, hub: hub}
}

// Serve consumes the fan-out topic until ctx is canceled. It implements
// suture.Service; a closed subscription returns an error so the
// supervisor resubscribes.
func (b *Bridge) Serve(ctx context.Context) error {
	msgs, err := b.subscriber.Subscribe(ctx)
	if err != nil {
		return err
	}
	logging.Info().Str("instance", b.hub.InstanceID()).Msg("websocket bridge subscribed to backplane")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrSubscriptionClosed
			}
			b.handle(msg)
		}
	}
}

func (b *Bridge) handle(msg *message.Message) {
	// envelopes are ephemeral: a bad one is dropped, never redelivered
	defer msg.Ack()

	var env models.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable envelope")
		return
	}
	if env.Room == "" || env.Event == "" {
		logging.Warn().Str("message_uuid", msg.UUID).Msg("dropping envelope without room or event")
		return
	}
	b.hub.Deliver(&env)
}

// String names the service in supervisor logs.
func (b *Bridge) String() string {
	return "websocket-bridge"
}
