package relay

import (
	"testing"

	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/registry"
)

func newTestCoordinator() (*Coordinator, *registry.Registry, *Router) {
	reg := registry.New()
	router := NewRouter(reg)
	return NewCoordinator(reg, router, nil), reg, router
}

func sd(kind, body string) *models.SessionDescription {
	return &models.SessionDescription{Type: kind, SDP: body}
}

func TestHandleJoin_BroadcastAndEcho(t *testing.T) {
	coord, reg, router := newTestCoordinator()

	a := &recorder{}
	b := &recorder{}
	router.Attach("conn-a", a)
	router.Attach("conn-b", b)

	coord.HandleJoin("conn-a", "R1", "a@example.com")

	if connID, ok := reg.Lookup("a@example.com"); !ok || connID != "conn-a" {
		t.Fatalf("registry missing a@example.com after join")
	}

	// The only message so far is A's own echo.
	aGot := a.received()
	if len(aGot) != 1 || aGot[0].Type != models.SignalTypeJoinRoom {
		t.Fatalf("joiner received %v; want join-room echo", aGot)
	}
	if aGot[0].RoomID != "R1" || aGot[0].Identity != "a@example.com" {
		t.Fatalf("echo payload = %+v", aGot[0])
	}

	coord.HandleJoin("conn-b", "R1", "b@example.com")

	// A sees B's arrival; B gets only its own echo.
	aGot = a.received()
	if len(aGot) != 2 || aGot[1].Type != models.SignalTypeUserJoined {
		t.Fatalf("a received %v; want user-joined for b", aGot)
	}
	if aGot[1].Identity != "b@example.com" || aGot[1].From != "conn-b" {
		t.Fatalf("user-joined payload = %+v", aGot[1])
	}
	bGot := b.received()
	if len(bGot) != 1 || bGot[0].Type != models.SignalTypeJoinRoom {
		t.Fatalf("b received %v; want only its join-room echo", bGot)
	}
}

func TestHandleMessage_CallRoundTrip(t *testing.T) {
	coord, _, router := newTestCoordinator()

	a := &recorder{}
	b := &recorder{}
	router.Attach("conn-a", a)
	router.Attach("conn-b", b)
	coord.HandleJoin("conn-a", "R1", "a@example.com")
	coord.HandleJoin("conn-b", "R1", "b@example.com")

	coord.HandleMessage("conn-a", models.SignalMessage{
		Type:  models.SignalTypeUserCall,
		To:    "conn-b",
		Offer: sd("offer", "O1"),
	})

	bGot := b.received()
	last := bGot[len(bGot)-1]
	if last.Type != models.SignalTypeIncomingCall {
		t.Fatalf("b received %v; want incoming-call", last)
	}
	if last.From != "conn-a" || last.Offer == nil || last.Offer.SDP != "O1" {
		t.Fatalf("incoming-call payload = %+v", last)
	}

	coord.HandleMessage("conn-b", models.SignalMessage{
		Type:   models.SignalTypeCallAccepted,
		To:     "conn-a",
		Answer: sd("answer", "S1"),
	})

	aGot := a.received()
	last = aGot[len(aGot)-1]
	if last.Type != models.SignalTypeCallAccepted {
		t.Fatalf("a received %v; want call-accepted", last)
	}
	if last.From != "conn-b" || last.Answer == nil || last.Answer.SDP != "S1" {
		t.Fatalf("call-accepted payload = %+v", last)
	}
}

func TestHandleMessage_RenegotiationUsesDistinctEvents(t *testing.T) {
	coord, reg, router := newTestCoordinator()

	a := &recorder{}
	b := &recorder{}
	router.Attach("conn-a", a)
	router.Attach("conn-b", b)
	reg.Register("a@example.com", "conn-a")
	reg.Register("b@example.com", "conn-b")

	coord.HandleMessage("conn-a", models.SignalMessage{
		Type:  models.SignalTypeNegoNeeded,
		To:    "conn-b",
		Offer: sd("offer", "O2"),
	})

	bGot := b.received()
	if len(bGot) != 1 || bGot[0].Type != models.SignalTypeNegoNeeded || bGot[0].From != "conn-a" {
		t.Fatalf("b received %v; want peer-nego-needed from conn-a", bGot)
	}

	coord.HandleMessage("conn-b", models.SignalMessage{
		Type:   models.SignalTypeNegoDone,
		To:     "conn-a",
		Answer: sd("answer", "S2"),
	})

	aGot := a.received()
	if len(aGot) != 1 || aGot[0].Type != models.SignalTypeNegoFinal {
		t.Fatalf("a received %v; want peer-nego-final", aGot)
	}
}

func TestHandleMessage_FromIsStampedNotTrusted(t *testing.T) {
	coord, reg, router := newTestCoordinator()

	b := &recorder{}
	router.Attach("conn-a", &recorder{})
	router.Attach("conn-b", b)
	reg.Register("b@example.com", "conn-b")

	coord.HandleMessage("conn-a", models.SignalMessage{
		Type:  models.SignalTypeUserCall,
		From:  "conn-spoofed",
		To:    "conn-b",
		Offer: sd("offer", "O1"),
	})

	bGot := b.received()
	if len(bGot) != 1 || bGot[0].From != "conn-a" {
		t.Fatalf("forwarded From = %q; want conn-a", bGot[0].From)
	}
}

func TestHandleMessage_UnknownTargetReportedToSenderOnly(t *testing.T) {
	coord, _, router := newTestCoordinator()

	a := &recorder{}
	b := &recorder{}
	router.Attach("conn-a", a)
	router.Attach("conn-b", b)

	coord.HandleMessage("conn-a", models.SignalMessage{
		Type:  models.SignalTypeUserCall,
		To:    "nonexistent",
		Offer: sd("offer", "O1"),
	})

	aGot := a.received()
	if len(aGot) != 1 || aGot[0].Type != models.SignalTypeError {
		t.Fatalf("a received %v; want a single error report", aGot)
	}
	if got := b.received(); len(got) != 0 {
		t.Fatalf("bystander received %v", got)
	}
}

func TestHandleMessage_UnjoinedTargetNotAddressable(t *testing.T) {
	coord, _, router := newTestCoordinator()

	a := &recorder{}
	b := &recorder{}
	router.Attach("conn-a", a)
	// conn-b is attached (socket upgraded) but has not joined yet.
	router.Attach("conn-b", b)

	coord.HandleMessage("conn-a", models.SignalMessage{
		Type:  models.SignalTypeUserCall,
		To:    "conn-b",
		Offer: sd("offer", "O1"),
	})

	if got := b.received(); len(got) != 0 {
		t.Fatalf("unjoined target received %v", got)
	}
	aGot := a.received()
	if len(aGot) != 1 || aGot[0].Type != models.SignalTypeError {
		t.Fatalf("a received %v; want a single error report", aGot)
	}
}

func TestHandleMessage_InvalidMessageReported(t *testing.T) {
	coord, _, router := newTestCoordinator()

	a := &recorder{}
	router.Attach("conn-a", a)

	coord.HandleMessage("conn-a", models.SignalMessage{Type: models.SignalTypeUserCall})

	aGot := a.received()
	if len(aGot) != 1 || aGot[0].Type != models.SignalTypeError {
		t.Fatalf("a received %v; want validation error", aGot)
	}
}

func TestHandleDisconnect_ClearsRegistryState(t *testing.T) {
	coord, reg, router := newTestCoordinator()

	a := &recorder{}
	router.Attach("conn-a", a)
	coord.HandleJoin("conn-a", "R1", "a@example.com")

	coord.HandleDisconnect("conn-a")

	if _, ok := reg.Resolve("conn-a"); ok {
		t.Fatalf("conn-a still registered after disconnect")
	}
	if _, ok := reg.Lookup("a@example.com"); ok {
		t.Fatalf("identity still mapped after disconnect")
	}
	if err := router.SendTo("conn-a", models.SignalMessage{}); err == nil {
		t.Fatalf("stale connection still addressable")
	}
	if members := reg.RoomMembers("R1"); len(members) != 0 {
		t.Fatalf("room not cleaned: %v", members)
	}
}

func TestHandleMessage_EndOfCallRouted(t *testing.T) {
	coord, reg, router := newTestCoordinator()

	b := &recorder{}
	router.Attach("conn-a", &recorder{})
	router.Attach("conn-b", b)
	reg.Register("b@example.com", "conn-b")

	coord.HandleMessage("conn-a", models.SignalMessage{
		Type: models.SignalTypeCallEnded,
		To:   "conn-b",
	})

	bGot := b.received()
	if len(bGot) != 1 || bGot[0].Type != models.SignalTypeCallEnded || bGot[0].From != "conn-a" {
		t.Fatalf("b received %v; want call-ended from conn-a", bGot)
	}
}
