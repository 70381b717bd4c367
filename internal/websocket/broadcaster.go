// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package websocket

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/campusnet/internal/metrics"
	"github.com/tomtom215/campusnet/internal/models"
)

// Metadata keys set on backplane messages.
const (
	MetadataEvent  = "event"
	MetadataRoom   = "room"
	MetadataOrigin = "origin"
)

// FanoutPublisher sends a message on the fan-out topic.
type FanoutPublisher interface {
	Publish(ctx context.Context, msg *message.Message) error
}

// Broadcaster turns room events into backplane envelopes. It satisfies
// chat.Publisher and RoomPublisher.
type Broadcaster struct {
	publisher FanoutPublisher
	origin    string
}

// NewBroadcaster creates a broadcaster stamping envelopes with origin,
// normally the local hub's instance id.
func NewBroadcaster(publisher FanoutPublisher, origin string) *Broadcaster {
	return &Broadcaster{publisher: publisher, origin: origin}
}

// Publish sends event to every connection in room.
func (b *Broadcaster) Publish(ctx context.Context, room, event string, payload any) error {
	return b.PublishExcept(ctx, room, event, payload, "")
}

// PublishExcept sends event to every connection in room except the local
// connection excludeConn.
func (b *Broadcaster) PublishExcept(ctx context.Context, room, event string, payload any, excludeConn string) (err error) {
	defer func() { metrics.RecordFanoutPublish(event, err) }()

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	body, err := json.Marshal(models.Envelope{
		Room:        room,
		Event:       event,
		Payload:     raw,
		Origin:      b.origin,
		ExcludeConn: excludeConn,
	})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set(MetadataEvent, event)
	msg.Metadata.Set(MetadataRoom, room)
	msg.Metadata.Set(MetadataOrigin, b.origin)

	if err := b.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", event, room, err)
	}
	return nil
}
