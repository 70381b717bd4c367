// Campusnet - University Social Network Messaging
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/campusnet

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/campusnet/internal/logging"
	"github.com/tomtom215/campusnet/internal/metrics"
	"github.com/tomtom215/campusnet/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub is this instance's cache of room subscriptions. It only knows the
// connections attached to this process; the backplane makes sure every
// instance's hub sees every envelope.
type Hub struct {
	instanceID string

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub creates a hub for the instance identified by instanceID.
func NewHub(instanceID string) *Hub {
	return &Hub{
		instanceID: instanceID,
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
	}
}

// InstanceID returns the id stamped on envelopes published from here.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Register attaches a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnectionsActive.Set(float64(total))
	logging.Info().
		Str("conn_id", c.id).
		Str("user_id", c.userID).
		Int("total_clients", total).
		Msg("websocket client connected")
}

// Unregister detaches a client and leaves every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	total := len(h.clients)
	h.mu.Unlock()

	if removed {
		metrics.WSConnectionsActive.Set(float64(total))
		logging.Info().
			Str("conn_id", c.id).
			Str("user_id", c.userID).
			Int("total_clients", total).
			Msg("websocket client disconnected")
	}
}

// Join subscribes c to room. It reports false when c was already a member
// or is no longer connected.
func (h *Hub) Join(room string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return false
	}
	if _, ok := c.rooms[room]; ok {
		return false
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	metrics.WSRoomsActive.Set(float64(len(h.rooms)))
	return true
}

// Leave unsubscribes c from room. It reports whether c was a member.
func (h *Hub) Leave(room string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(room, c)
}

// InRoom reports whether c has joined room.
func (h *Hub) InRoom(room string, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Deliver writes env to every local member of its room, skipping the
// connection the publisher asked to exclude. It returns how many
// connections were written to.
func (h *Hub) Deliver(env *models.Envelope) int {
	frame, err := json.Marshal(models.Frame{Event: env.Event, Data: env.Payload})
	if err != nil {
		logging.Warn().Err(err).Str("event", env.Event).Msg("failed to encode websocket frame")
		return 0
	}

	h.mu.RLock()
	members := h.sortedMembers(env.Room)
	var slow []*Client
	delivered := 0
	for _, c := range members {
		if env.ExcludeConn != "" && c.id == env.ExcludeConn && env.Origin == h.instanceID {
			continue
		}
		if c.trySend(frame) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) > 0 {
		h.dropSlow(slow)
	}
	if delivered > 0 {
		metrics.FanoutDelivered.WithLabelValues(env.Event).Add(float64(delivered))
	}
	return delivered
}

// sendTo writes a frame to one client. Must not be called with h.mu held.
func (h *Hub) sendTo(c *Client, frame []byte) {
	h.mu.RLock()
	ok := c.trySend(frame)
	h.mu.RUnlock()
	if !ok {
		h.dropSlow([]*Client{c})
	}
}

// dropSlow disconnects clients whose send buffer is full; they recover by
// reconnecting and fetching.
func (h *Hub) dropSlow(clients []*Client) {
	h.mu.Lock()
	for _, c := range clients {
		if h.removeLocked(c) {
			metrics.WSSendDropped.Inc()
			logging.Warn().Str("conn_id", c.id).Str("user_id", c.userID).Msg("websocket client too slow, disconnecting")
		}
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectionsActive.Set(float64(total))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of local members of room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// RunWithContext blocks until ctx is done, then closes every client. It is
// run under the supervisor so shutdown disconnects sockets cleanly.
func (h *Hub) RunWithContext(ctx context.Context) error {
	<-ctx.Done()

	clientCount := h.ClientCount()
	h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
	return ctx.Err()
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
	metrics.WSConnectionsActive.Set(0)
	metrics.WSRoomsActive.Set(0)
}

// Internal methods (must be called with h.mu held for writing)

func (h *Hub) removeLocked(c *Client) bool {
	if c.closed {
		return false
	}
	for room := range c.rooms {
		h.leaveLocked(room, c)
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)
	return true
}

func (h *Hub) leaveLocked(room string, c *Client) bool {
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	metrics.WSRoomsActive.Set(float64(len(h.rooms)))
	return true
}

// sortedMembers returns room members in connection order so delivery is
// deterministic. Must be called with h.mu held.
func (h *Hub) sortedMembers(room string) []*Client {
	members := h.rooms[room]
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
