package models

import "testing"

func desc(kind, body string) *SessionDescription {
	return &SessionDescription{Type: kind, SDP: body}
}

func TestSignalMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     SignalMessage
		wantErr bool
	}{
		{
			name: "join-room complete",
			msg:  SignalMessage{Type: SignalTypeJoinRoom, RoomID: "r1", Identity: "a@example.com"},
		},
		{
			name:    "join-room missing identity",
			msg:     SignalMessage{Type: SignalTypeJoinRoom, RoomID: "r1"},
			wantErr: true,
		},
		{
			name:    "join-room missing room",
			msg:     SignalMessage{Type: SignalTypeJoinRoom, Identity: "a@example.com"},
			wantErr: true,
		},
		{
			name: "user-call with offer",
			msg:  SignalMessage{Type: SignalTypeUserCall, To: "conn-2", Offer: desc("offer", "v=0")},
		},
		{
			name:    "user-call without target",
			msg:     SignalMessage{Type: SignalTypeUserCall, Offer: desc("offer", "v=0")},
			wantErr: true,
		},
		{
			name:    "user-call with empty offer",
			msg:     SignalMessage{Type: SignalTypeUserCall, To: "conn-2", Offer: desc("offer", "")},
			wantErr: true,
		},
		{
			name: "renegotiation offer",
			msg:  SignalMessage{Type: SignalTypeNegoNeeded, To: "conn-2", Offer: desc("offer", "v=0")},
		},
		{
			name: "call-accepted with answer",
			msg:  SignalMessage{Type: SignalTypeCallAccepted, To: "conn-1", Answer: desc("answer", "v=0")},
		},
		{
			name:    "call-accepted missing answer",
			msg:     SignalMessage{Type: SignalTypeCallAccepted, To: "conn-1"},
			wantErr: true,
		},
		{
			name: "renegotiation answer",
			msg:  SignalMessage{Type: SignalTypeNegoDone, To: "conn-1", Answer: desc("answer", "v=0")},
		},
		{
			name: "call-ended targeted",
			msg:  SignalMessage{Type: SignalTypeCallEnded, To: "conn-1"},
		},
		{
			name:    "call-ended without target",
			msg:     SignalMessage{Type: SignalTypeCallEnded},
			wantErr: true,
		},
		{
			name:    "relay-only type rejected from clients",
			msg:     SignalMessage{Type: SignalTypeIncomingCall, To: "conn-1", Offer: desc("offer", "v=0")},
			wantErr: true,
		},
		{
			name:    "unknown type",
			msg:     SignalMessage{Type: "shrug"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v; wantErr %v", err, tt.wantErr)
			}
		})
	}
}
