// Package broadcast fans room-scoped events out to live connections.
package broadcast

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/example/workspace-realtime/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
)

// TransportDeliveryError reports a frame that could not be queued for one recipient.
type TransportDeliveryError struct {
	ConnectionID string
	RoomID       string
	Err          error
}

func (e *TransportDeliveryError) Error() string {
	if e.RoomID == "" {
		return fmt.Sprintf("deliver to %s: %v", e.ConnectionID, e.Err)
	}
	return fmt.Sprintf("deliver %s to %s: %v", e.RoomID, e.ConnectionID, e.Err)
}

func (e *TransportDeliveryError) Unwrap() error {
	return e.Err
}

// Router delivers envelopes to connections held by a registry.
// Delivery never blocks: each recipient owns a bounded queue and a full or
// closed queue only affects that recipient.
type Router struct {
	registry *registry.Registry
	logger   types.Logger

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewRouter creates a router over reg.
func NewRouter(reg *registry.Registry, logger types.Logger) *Router {
	return &Router{registry: reg, logger: logger}
}

// ToRoom delivers env to every member connection of roomID except exclude.
// It returns the number of connections the frame was queued for.
func (r *Router) ToRoom(roomID string, members []string, env Envelope, exclude string) int {
	frame, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("Failed to marshal broadcast", "roomID", roomID, "event", env.Event, "error", err)
		return 0
	}

	sent := 0
	for _, id := range members {
		if id == exclude {
			continue
		}
		if err := r.deliver(roomID, id, frame); err != nil {
			r.logger.Warn("Broadcast delivery failed", "roomID", roomID, "event", env.Event, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// ToConnections delivers env to each listed connection.
func (r *Router) ToConnections(ids []string, env Envelope) int {
	return r.ToRoom("", ids, env, "")
}

// Send delivers env to a single connection, used for acknowledgements.
func (r *Router) Send(conn *registry.Connection, env Envelope) error {
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Event, err)
	}
	if err := conn.Send(frame); err != nil {
		r.dropped.Add(1)
		return &TransportDeliveryError{ConnectionID: conn.ID, Err: err}
	}
	r.delivered.Add(1)
	return nil
}

func (r *Router) deliver(roomID, connectionID string, frame []byte) error {
	conn, ok := r.registry.Get(connectionID)
	if !ok {
		r.dropped.Add(1)
		return &TransportDeliveryError{ConnectionID: connectionID, RoomID: roomID, Err: registry.ErrConnectionClosed}
	}
	if err := conn.Send(frame); err != nil {
		r.dropped.Add(1)
		return &TransportDeliveryError{ConnectionID: connectionID, RoomID: roomID, Err: err}
	}
	r.delivered.Add(1)
	return nil
}

// Stats returns delivered and dropped frame counters.
func (r *Router) Stats() (delivered, dropped int64) {
	return r.delivered.Load(), r.dropped.Load()
}
