package relay

import (
	"errors"
	"sync"
	"testing"

	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/registry"
)

// recorder collects everything delivered to one connection.
type recorder struct {
	mu   sync.Mutex
	msgs []models.SignalMessage
	fail bool
}

func (r *recorder) Send(msg models.SignalMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("send buffer full")
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) received() []models.SignalMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SignalMessage(nil), r.msgs...)
}

func TestSendTo_UnknownTarget(t *testing.T) {
	reg := registry.New()
	router := NewRouter(reg)

	err := router.SendTo("nobody", models.SignalMessage{Type: models.SignalTypeError})
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("SendTo = %v; want ErrUnknownTarget", err)
	}
}

func TestSendTo_DeliversToAttachedConnection(t *testing.T) {
	reg := registry.New()
	router := NewRouter(reg)
	rec := &recorder{}
	router.Attach("conn-1", rec)

	msg := models.SignalMessage{Type: models.SignalTypeUserJoined, Identity: "a@example.com"}
	if err := router.SendTo("conn-1", msg); err != nil {
		t.Fatalf("SendTo: %v", err)
	}
	got := rec.received()
	if len(got) != 1 || got[0].Identity != "a@example.com" {
		t.Fatalf("received = %v; want one user-joined", got)
	}
}

func TestSendTo_AfterDetachFails(t *testing.T) {
	reg := registry.New()
	router := NewRouter(reg)
	router.Attach("conn-1", &recorder{})
	router.Detach("conn-1")

	if err := router.SendTo("conn-1", models.SignalMessage{}); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("SendTo after detach = %v; want ErrUnknownTarget", err)
	}
}

func TestBroadcastToRoom_ExcludesSender(t *testing.T) {
	reg := registry.New()
	router := NewRouter(reg)

	members := map[string]*recorder{
		"conn-a": {},
		"conn-b": {},
		"conn-c": {},
	}
	for connID, rec := range members {
		router.Attach(connID, rec)
		reg.JoinRoom(connID, "room-1")
	}

	msg := models.SignalMessage{Type: models.SignalTypeUserJoined, From: "conn-a"}
	router.BroadcastToRoom("room-1", msg, "conn-a")

	if got := members["conn-a"].received(); len(got) != 0 {
		t.Fatalf("excluded member received %v", got)
	}
	for _, connID := range []string{"conn-b", "conn-c"} {
		if got := members[connID].received(); len(got) != 1 {
			t.Fatalf("%s received %d messages; want exactly 1", connID, len(got))
		}
	}
}

func TestBroadcastToRoom_EmptyRoomIsNoOp(t *testing.T) {
	reg := registry.New()
	router := NewRouter(reg)
	router.BroadcastToRoom("nobody-home", models.SignalMessage{}, "")
}

func TestBroadcastToRoom_SlowRecipientDoesNotAffectOthers(t *testing.T) {
	reg := registry.New()
	router := NewRouter(reg)

	slow := &recorder{fail: true}
	ok := &recorder{}
	router.Attach("conn-slow", slow)
	router.Attach("conn-ok", ok)
	reg.JoinRoom("conn-slow", "room-1")
	reg.JoinRoom("conn-ok", "room-1")

	router.BroadcastToRoom("room-1", models.SignalMessage{Type: models.SignalTypeUserJoined}, "")

	if got := ok.received(); len(got) != 1 {
		t.Fatalf("healthy member received %d messages; want 1", len(got))
	}
}

func TestSendTo_FIFOPerSenderReceiverPair(t *testing.T) {
	reg := registry.New()
	router := NewRouter(reg)
	rec := &recorder{}
	router.Attach("conn-1", rec)

	for i := 0; i < 10; i++ {
		msg := models.SignalMessage{Type: models.SignalTypeError, Error: string(rune('a' + i))}
		if err := router.SendTo("conn-1", msg); err != nil {
			t.Fatalf("SendTo: %v", err)
		}
	}

	got := rec.received()
	for i, msg := range got {
		if msg.Error != string(rune('a'+i)) {
			t.Fatalf("message %d out of order: %q", i, msg.Error)
		}
	}
}
