package registry

import (
	"sync"
	"testing"
)

func TestRegister_LastRegistrationWins(t *testing.T) {
	r := New()

	r.Register("alice@example.com", "conn-1")
	r.Register("alice@example.com", "conn-2")

	if connID, ok := r.Lookup("alice@example.com"); !ok || connID != "conn-2" {
		t.Fatalf("Lookup = %q, %v; want conn-2, true", connID, ok)
	}
	if _, ok := r.Resolve("conn-1"); ok {
		t.Fatalf("superseded connection still resolves")
	}
	if identity, ok := r.Resolve("conn-2"); !ok || identity != "alice@example.com" {
		t.Fatalf("Resolve = %q, %v; want alice@example.com, true", identity, ok)
	}
}

func TestUnregister_ClearsBothDirectionsAndRoom(t *testing.T) {
	r := New()
	r.Register("bob@example.com", "conn-1")
	r.JoinRoom("conn-1", "room-1")

	r.Unregister("conn-1")

	if _, ok := r.Resolve("conn-1"); ok {
		t.Fatalf("connection still resolves after unregister")
	}
	if _, ok := r.Lookup("bob@example.com"); ok {
		t.Fatalf("identity still resolves after unregister")
	}
	if members := r.RoomMembers("room-1"); len(members) != 0 {
		t.Fatalf("room still has members: %v", members)
	}
}

func TestUnregister_UnknownIsNoOp(t *testing.T) {
	r := New()
	r.Unregister("never-seen")
}

func TestUnregister_DoesNotClobberReconnect(t *testing.T) {
	r := New()
	r.Register("carol@example.com", "conn-old")
	r.Register("carol@example.com", "conn-new")

	// Late cleanup of the superseded connection must not take the
	// identity's fresh mapping with it.
	r.Unregister("conn-old")

	if connID, ok := r.Lookup("carol@example.com"); !ok || connID != "conn-new" {
		t.Fatalf("Lookup = %q, %v; want conn-new, true", connID, ok)
	}
}

func TestJoinRoom_AtMostOneRoomPerConnection(t *testing.T) {
	r := New()
	r.Register("dave@example.com", "conn-1")

	r.JoinRoom("conn-1", "room-a")
	r.JoinRoom("conn-1", "room-b")

	if members := r.RoomMembers("room-a"); len(members) != 0 {
		t.Fatalf("room-a still has members: %v", members)
	}
	members := r.RoomMembers("room-b")
	if len(members) != 1 || members[0] != "conn-1" {
		t.Fatalf("room-b members = %v; want [conn-1]", members)
	}
	if roomID, ok := r.Room("conn-1"); !ok || roomID != "room-b" {
		t.Fatalf("Room = %q, %v; want room-b, true", roomID, ok)
	}
}

func TestRoomMembers_UnknownRoomIsEmpty(t *testing.T) {
	r := New()
	if members := r.RoomMembers("ghost"); len(members) != 0 {
		t.Fatalf("unknown room has members: %v", members)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ids := []string{"a", "b", "c", "d"}
			for j := 0; j < 100; j++ {
				identity := ids[(n+j)%len(ids)] + "@example.com"
				connID := ids[(n+j)%len(ids)]
				r.Register(identity, connID)
				r.JoinRoom(connID, "room")
				r.RoomMembers("room")
				r.Resolve(connID)
				r.Unregister(connID)
			}
		}(i)
	}
	wg.Wait()
}
