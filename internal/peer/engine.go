// Package peer wraps one underlying point-to-point media connection per
// call attempt and sequences its offer/answer operations. It knows
// nothing about the relay: the call controller moves descriptions
// between two engines over the signaling transport.
package peer

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/peercall/internal/models"
)

var (
	// ErrNegotiationConflict: an offer was requested while one is
	// already outstanding on this engine.
	ErrNegotiationConflict = errors.New("offer already outstanding")
	// ErrNoOutstandingOffer: an answer was applied with no local offer
	// pending.
	ErrNoOutstandingOffer = errors.New("no outstanding offer")
	ErrEngineClosed       = errors.New("engine closed")
)

// RemoteTrack describes a newly arrived inbound media track. Purely
// informational; the UI collaborator decides what to do with it.
type RemoteTrack struct {
	ID   string
	Kind string
}

// sessionConn is the narrow surface the engine needs from the
// underlying connection. The Pion peer connection satisfies it through
// a thin adapter; tests inject a fake.
type sessionConn interface {
	CreateOffer() (models.SessionDescription, error)
	CreateAnswer() (models.SessionDescription, error)
	SetLocalDescription(models.SessionDescription) error
	SetRemoteDescription(models.SessionDescription) error
	AddTrack(webrtc.TrackLocal) error
	Close() error
}

// Engine sequences offer/answer exchange against one connection.
// Exactly one operation may be outstanding at a time; the call
// controller enforces that with its phase guard, the engine only tracks
// whether a local offer is pending.
type Engine struct {
	conn sessionConn

	mu           sync.Mutex
	offerPending bool
	closed       bool

	renegotiation chan struct{}
	remoteTracks  chan RemoteTrack
}

func newEngine(conn sessionConn) *Engine {
	return &Engine{
		conn:          conn,
		renegotiation: make(chan struct{}, 1),
		remoteTracks:  make(chan RemoteTrack, 8),
	}
}

// CreateOffer produces a local description, applies it as the current
// local description, and returns it for transmission.
func (e *Engine) CreateOffer() (models.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return models.SessionDescription{}, ErrEngineClosed
	}
	if e.offerPending {
		return models.SessionDescription{}, ErrNegotiationConflict
	}

	offer, err := e.conn.CreateOffer()
	if err != nil {
		return models.SessionDescription{}, err
	}
	if err := e.conn.SetLocalDescription(offer); err != nil {
		return models.SessionDescription{}, err
	}
	e.offerPending = true
	return offer, nil
}

// CreateAnswer applies the remote offer, then produces and applies a
// matching local answer.
func (e *Engine) CreateAnswer(remoteOffer models.SessionDescription) (models.SessionDescription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return models.SessionDescription{}, ErrEngineClosed
	}
	if err := e.conn.SetRemoteDescription(remoteOffer); err != nil {
		return models.SessionDescription{}, err
	}
	answer, err := e.conn.CreateAnswer()
	if err != nil {
		return models.SessionDescription{}, err
	}
	if err := e.conn.SetLocalDescription(answer); err != nil {
		return models.SessionDescription{}, err
	}
	return answer, nil
}

// ApplyAnswer applies a previously solicited answer as the remote
// description, completing the outstanding offer.
func (e *Engine) ApplyAnswer(remoteAnswer models.SessionDescription) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if !e.offerPending {
		return ErrNoOutstandingOffer
	}
	if err := e.conn.SetRemoteDescription(remoteAnswer); err != nil {
		return err
	}
	e.offerPending = false
	return nil
}

// RenegotiationNeeded signals that the local media configuration
// changed in a way that requires a fresh offer/answer round. The
// channel is buffered to one entry: firings collapse until drained,
// and the controller's pending-renegotiation guard handles debouncing
// across rounds.
func (e *Engine) RenegotiationNeeded() <-chan struct{} {
	return e.renegotiation
}

// RemoteTracks yields one entry per newly arrived inbound track.
func (e *Engine) RemoteTracks() <-chan RemoteTrack {
	return e.remoteTracks
}

// Close releases the underlying connection. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	return e.conn.Close()
}

func (e *Engine) notifyRenegotiationNeeded() {
	select {
	case e.renegotiation <- struct{}{}:
	default:
	}
}

func (e *Engine) notifyRemoteTrack(t RemoteTrack) {
	select {
	case e.remoteTracks <- t:
	default:
	}
}
