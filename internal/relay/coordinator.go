package relay

import (
	"context"
	"log"

	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/registry"
)

// Presence records which connections are present in which room, for the
// room management API's participant counts. Backed by Redis in
// production; may be nil.
type Presence interface {
	AddPeer(ctx context.Context, roomID, connID string)
	RemovePeer(ctx context.Context, roomID, connID string)
}

// forwardType maps an inbound targeted event to the event delivered to
// its target. Mostly identity, except the renegotiation answer which
// arrives as peer-nego-done and is delivered as peer-nego-final.
var forwardType = map[models.SignalType]models.SignalType{
	models.SignalTypeUserCall:     models.SignalTypeIncomingCall,
	models.SignalTypeCallAccepted: models.SignalTypeCallAccepted,
	models.SignalTypeNegoNeeded:   models.SignalTypeNegoNeeded,
	models.SignalTypeNegoDone:     models.SignalTypeNegoFinal,
	models.SignalTypeCallEnded:    models.SignalTypeCallEnded,
}

// Coordinator handles joins and disconnects and dispatches every other
// inbound signaling event. One Coordinator serves all connections; the
// registry serializes the shared state underneath it.
type Coordinator struct {
	reg      *registry.Registry
	router   *Router
	presence Presence
}

func NewCoordinator(reg *registry.Registry, router *Router, presence Presence) *Coordinator {
	return &Coordinator{reg: reg, router: router, presence: presence}
}

// HandleJoin registers the identity, adds the connection to the room,
// announces the newcomer to everyone already there, and echoes the join
// back to the joiner so its endpoint can tell "I joined" apart from
// "someone else joined".
func (c *Coordinator) HandleJoin(connID, roomID, identity string) {
	c.reg.Register(identity, connID)
	c.reg.JoinRoom(connID, roomID)
	if c.presence != nil {
		c.presence.AddPeer(context.Background(), roomID, connID)
	}

	log.Printf("user %s joined room %s (conn %s)", identity, roomID, connID)

	c.router.BroadcastToRoom(roomID, models.SignalMessage{
		Type:     models.SignalTypeUserJoined,
		From:     connID,
		Identity: identity,
		RoomID:   roomID,
	}, connID)

	if err := c.router.SendTo(connID, models.SignalMessage{
		Type:     models.SignalTypeJoinRoom,
		RoomID:   roomID,
		Identity: identity,
	}); err != nil {
		log.Printf("join ack to %s: %v", connID, err)
	}
}

// HandleDisconnect clears all registry state for the connection. No
// leave broadcast: peers observe the loss through their own transport.
func (c *Coordinator) HandleDisconnect(connID string) {
	if identity, ok := c.reg.Resolve(connID); ok {
		log.Printf("user %s disconnected (conn %s)", identity, connID)
	}
	if roomID, ok := c.reg.Room(connID); ok && c.presence != nil {
		c.presence.RemovePeer(context.Background(), roomID, connID)
	}
	c.reg.Unregister(connID)
	c.router.Detach(connID)
}

// HandleMessage processes one inbound event from connID. Errors are
// reported back to the sender only; the relay and other connections are
// unaffected.
func (c *Coordinator) HandleMessage(connID string, msg models.SignalMessage) {
	if err := msg.Validate(); err != nil {
		c.reportError(connID, err.Error())
		return
	}

	// The sender's claim of its own id is never trusted.
	msg.From = connID

	if msg.Type == models.SignalTypeJoinRoom {
		c.HandleJoin(connID, msg.RoomID, msg.Identity)
		return
	}

	out, ok := forwardType[msg.Type]
	if !ok {
		c.reportError(connID, "unsupported message type "+string(msg.Type))
		return
	}

	// A connection is addressable only once it has joined: between the
	// websocket upgrade and the join it is attached but not registered,
	// and targeted events must not reach it.
	target := msg.To
	if !c.reg.Known(target) {
		c.reportError(connID, "unknown target connection "+target)
		return
	}
	forwarded := models.SignalMessage{
		Type:   out,
		From:   connID,
		Offer:  msg.Offer,
		Answer: msg.Answer,
	}
	if err := c.router.SendTo(target, forwarded); err != nil {
		log.Printf("forward %s from %s: %v", msg.Type, connID, err)
		c.reportError(connID, "delivery failed: "+err.Error())
	}
}

func (c *Coordinator) reportError(connID, reason string) {
	if err := c.router.SendTo(connID, models.SignalMessage{
		Type:  models.SignalTypeError,
		Error: reason,
	}); err != nil {
		log.Printf("error report to %s: %v", connID, err)
	}
}
