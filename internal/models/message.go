package models

import "fmt"

// SignalType identifies a signaling event on the relay<->endpoint wire.
type SignalType string

const (
	// Endpoint -> relay, echoed back to the joiner on success.
	SignalTypeJoinRoom SignalType = "join-room"
	// Relay -> room members when someone else joins.
	SignalTypeUserJoined SignalType = "user-joined"
	// Endpoint -> relay: start a call towards a specific connection.
	SignalTypeUserCall SignalType = "user-call"
	// Relay -> callee: the offer, stamped with the caller's connection id.
	SignalTypeIncomingCall SignalType = "incoming-call"
	// Both directions: the answer back to the caller.
	SignalTypeCallAccepted SignalType = "call-accepted"
	// Renegotiation round: distinct from the initial handshake.
	SignalTypeNegoNeeded SignalType = "peer-nego-needed"
	SignalTypeNegoDone   SignalType = "peer-nego-done"
	SignalTypeNegoFinal  SignalType = "peer-nego-final"
	// Explicit hang-up, routed like the other targeted events.
	SignalTypeCallEnded SignalType = "call-ended"
	SignalTypeError     SignalType = "error"
)

// SessionDescription is a JSON-friendly SDP offer/answer. The wire schema
// deliberately avoids any WebRTC library type; only the endpoint engine
// converts to and from its own representation.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// SignalMessage is the single envelope for all signaling traffic.
// From is stamped by the relay with the sender's connection id and is
// never trusted from the payload.
type SignalMessage struct {
	Type     SignalType          `json:"type"`
	From     string              `json:"from,omitempty"`
	To       string              `json:"to,omitempty"`
	RoomID   string              `json:"roomId,omitempty"`
	Identity string              `json:"identity,omitempty"`
	Offer    *SessionDescription `json:"offer,omitempty"`
	Answer   *SessionDescription `json:"answer,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Validate checks the fields required for each inbound event type.
func (m SignalMessage) Validate() error {
	switch m.Type {
	case SignalTypeJoinRoom:
		if m.RoomID == "" {
			return fmt.Errorf("join-room: missing roomId")
		}
		if m.Identity == "" {
			return fmt.Errorf("join-room: missing identity")
		}
	case SignalTypeUserCall, SignalTypeNegoNeeded:
		if m.To == "" {
			return fmt.Errorf("%s: missing to", m.Type)
		}
		if m.Offer == nil || m.Offer.SDP == "" {
			return fmt.Errorf("%s: missing offer", m.Type)
		}
	case SignalTypeCallAccepted, SignalTypeNegoDone:
		if m.To == "" {
			return fmt.Errorf("%s: missing to", m.Type)
		}
		if m.Answer == nil || m.Answer.SDP == "" {
			return fmt.Errorf("%s: missing answer", m.Type)
		}
	case SignalTypeCallEnded:
		if m.To == "" {
			return fmt.Errorf("call-ended: missing to")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}
