// Package relay implements the signaling core: resolving "send to
// connection X" and "broadcast to room Y" into concrete deliveries, and
// the join/dispatch protocol driven by inbound endpoint messages.
package relay

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/registry"
)

// ErrUnknownTarget is returned when a message is addressed to a
// connection that is not currently attached. The message is dropped;
// this is a delivery failure, never fatal to the relay.
var ErrUnknownTarget = errors.New("unknown target connection")

// Sender hands one signaling message to a connection's transport.
// Implementations must not block the caller indefinitely; the websocket
// handler satisfies this with a buffered send channel that drops on
// overflow.
type Sender interface {
	Send(msg models.SignalMessage) error
}

// Router resolves connection ids to live transports and fans messages
// out to rooms via the registry's membership.
type Router struct {
	reg *registry.Registry

	mu    sync.RWMutex
	conns map[string]Sender
}

func NewRouter(reg *registry.Registry) *Router {
	return &Router{
		reg:   reg,
		conns: make(map[string]Sender),
	}
}

// Attach makes a connection addressable. Called when the transport is
// established, before any join.
func (r *Router) Attach(connID string, s Sender) {
	r.mu.Lock()
	r.conns[connID] = s
	r.mu.Unlock()
}

// Detach removes the transport. Idempotent.
func (r *Router) Detach(connID string) {
	r.mu.Lock()
	delete(r.conns, connID)
	r.mu.Unlock()
}

// SendTo delivers msg to exactly one connection. Callers must treat an
// error as a dropped message, not assume delivery succeeded.
func (r *Router) SendTo(connID string, msg models.SignalMessage) error {
	r.mu.RLock()
	s, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, connID)
	}
	return s.Send(msg)
}

// BroadcastToRoom delivers msg to every member of the room except
// excluding. A room with no remaining members is a silent no-op.
// Delivery to each member is best-effort; one slow or gone recipient
// does not affect the others.
func (r *Router) BroadcastToRoom(roomID string, msg models.SignalMessage, excluding string) {
	for _, connID := range r.reg.RoomMembers(roomID) {
		if connID == excluding {
			continue
		}
		if err := r.SendTo(connID, msg); err != nil {
			log.Printf("broadcast to room %s: %v", roomID, err)
		}
	}
}
