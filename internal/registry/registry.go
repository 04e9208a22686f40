// Package registry tracks which participant identity owns which live
// connection, and which room each connection sits in. It is purely
// in-memory and shared by every connection handler on the relay, so all
// access goes through one mutex-guarded instance with an explicit
// lifecycle instead of package-level maps.
package registry

import "sync"

// Registry is the bidirectional identity<->connection mapping plus room
// membership. Safe for concurrent use.
type Registry struct {
	mu             sync.RWMutex
	identityToConn map[string]string
	connToIdentity map[string]string
	connToRoom     map[string]string
	rooms          map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		identityToConn: make(map[string]string),
		connToIdentity: make(map[string]string),
		connToRoom:     make(map[string]string),
		rooms:          make(map[string]map[string]struct{}),
	}
}

// Register inserts or overwrites the identity<->connection mapping in both
// directions. A later registration for the same identity silently
// supersedes the earlier one; the superseded connection is no longer
// reachable by identity.
func (r *Registry) Register(identity, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.identityToConn[identity]; ok && old != connID {
		delete(r.connToIdentity, old)
	}
	if oldIdentity, ok := r.connToIdentity[connID]; ok && oldIdentity != identity {
		delete(r.identityToConn, oldIdentity)
	}
	r.identityToConn[identity] = connID
	r.connToIdentity[connID] = identity
}

// Resolve returns the identity registered for a connection.
func (r *Registry) Resolve(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.connToIdentity[connID]
	return identity, ok
}

// Lookup returns the live connection for an identity.
func (r *Registry) Lookup(identity string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.identityToConn[identity]
	return connID, ok
}

// Known reports whether connID is currently registered.
func (r *Registry) Known(connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connToIdentity[connID]
	return ok
}

// Unregister removes both directions of the mapping and drops the
// connection from its room. Unregistering an unknown id is a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if identity, ok := r.connToIdentity[connID]; ok {
		// Only clear the forward mapping if it still points at us; a
		// reconnect for the same identity may already own it.
		if r.identityToConn[identity] == connID {
			delete(r.identityToConn, identity)
		}
		delete(r.connToIdentity, connID)
	}
	r.leaveRoomLocked(connID)
}

// JoinRoom adds the connection to a room, creating the room lazily. A
// connection belongs to at most one room: joining a second room leaves
// the first.
func (r *Registry) JoinRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveRoomLocked(connID)

	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[roomID] = room
	}
	room[connID] = struct{}{}
	r.connToRoom[connID] = roomID
}

// Room returns the room the connection currently belongs to.
func (r *Registry) Room(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.connToRoom[connID]
	return roomID, ok
}

// RoomMembers returns a snapshot of the room's member connection ids.
// An unknown or empty room yields an empty slice.
func (r *Registry) RoomMembers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[roomID]
	members := make([]string, 0, len(room))
	for connID := range room {
		members = append(members, connID)
	}
	return members
}

func (r *Registry) leaveRoomLocked(connID string) {
	roomID, ok := r.connToRoom[connID]
	if !ok {
		return
	}
	delete(r.connToRoom, connID)
	if room, ok := r.rooms[roomID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
}
