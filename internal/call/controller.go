// Package call drives one endpoint's call lifecycle: the phase machine
// from idle through offer/answer to established, the renegotiation
// sub-protocol, and the mute/hide/end controls. Every input — a
// signaling message, an engine notification, a UI action — becomes an
// event on one queue drained by a single goroutine, so each is
// processed to completion before the next and the pending-renegotiation
// guard cannot race.
package call

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/mossy-p/peercall/internal/media"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/peer"
)

// Phase is the endpoint-visible call state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingLocalMedia
	PhaseOfferSent
	PhaseAnswerSent
	PhaseEstablished
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingLocalMedia:
		return "awaiting-local-media"
	case PhaseOfferSent:
		return "offer-sent"
	case PhaseAnswerSent:
		return "answer-sent"
	case PhaseEstablished:
		return "established"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Transport sends signaling messages towards the relay.
type Transport interface {
	Send(msg models.SignalMessage) error
}

// Engine is the slice of the negotiation engine the controller drives.
// *peer.Engine satisfies it.
type Engine interface {
	CreateOffer() (models.SessionDescription, error)
	CreateAnswer(remoteOffer models.SessionDescription) (models.SessionDescription, error)
	ApplyAnswer(remoteAnswer models.SessionDescription) error
	RenegotiationNeeded() <-chan struct{}
	RemoteTracks() <-chan peer.RemoteTrack
	Close() error
}

// LocalMedia is an acquired local capture. *media.Stream satisfies it.
type LocalMedia interface {
	ToggleAudio() bool
	ToggleVideo() bool
	Close() error
}

// MediaSource acquires local capture for a call attempt.
type MediaSource interface {
	Acquire() (LocalMedia, error)
}

// Config wires the controller's collaborators. NewEngine constructs one
// connection per call attempt, with the acquired media's tracks already
// attached; the controller destroys it with the call.
type Config struct {
	Transport   Transport
	Media       MediaSource
	NewEngine   func(m LocalMedia) (Engine, error)
	RingTimeout time.Duration

	OnJoined      func(roomID, identity string)
	OnPeerJoined  func(identity, connID string)
	OnEstablished func()
	OnEnded       func(reason string)
	OnRemoteTrack func(t peer.RemoteTrack)
}

type eventKind int

const (
	evSignal eventKind = iota
	evStartCall
	evEndCall
	evToggleAudio
	evToggleVideo
	evTransportLost
)

type event struct {
	kind   eventKind
	msg    models.SignalMessage
	target string
}

// Controller owns one call attempt at a time.
type Controller struct {
	cfg Config

	events    chan event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	// Snapshot fields, readable from outside the loop.
	mu         sync.Mutex
	phase      Phase
	peerConn   string
	remotePeer string
	muted      bool
	hidden     bool

	// Loop-owned state.
	pendingRenegotiation  bool
	renegotiationDeferred bool
	engine                Engine
	localMedia            LocalMedia
	ringTimer             *time.Timer
}

func New(cfg Config) *Controller {
	c := &Controller{
		cfg:     cfg,
		events:  make(chan event, 32),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		phase:   PhaseIdle,
	}
	go c.run()
	return c
}

// HandleSignal feeds one inbound signaling message into the queue.
// Called from the transport's read loop.
func (c *Controller) HandleSignal(msg models.SignalMessage) {
	c.enqueue(event{kind: evSignal, msg: msg})
}

// StartCall initiates a call to the given connection id. With an empty
// target it calls the most recently seen room peer.
func (c *Controller) StartCall(target string) {
	c.enqueue(event{kind: evStartCall, target: target})
}

// EndCall hangs up from any phase, releasing the connection and any
// local capture.
func (c *Controller) EndCall() {
	c.enqueue(event{kind: evEndCall})
}

// ToggleAudio flips outgoing audio enablement. A no-op when no local
// capture is held.
func (c *Controller) ToggleAudio() {
	c.enqueue(event{kind: evToggleAudio})
}

// ToggleVideo flips outgoing video enablement. A no-op when no local
// capture is held.
func (c *Controller) ToggleVideo() {
	c.enqueue(event{kind: evToggleVideo})
}

// TransportLost ends any in-flight call without notifying the peer;
// the relay side is already gone.
func (c *Controller) TransportLost() {
	c.enqueue(event{kind: evTransportLost})
}

// Close stops the controller, tearing down any active call.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.stopped
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// PeerConnID returns the connection id of the current call's peer.
func (c *Controller) PeerConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerConn
}

func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Controller) VideoHidden() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hidden
}

func (c *Controller) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		var reneg <-chan struct{}
		var tracks <-chan peer.RemoteTrack
		if c.engine != nil {
			reneg = c.engine.RenegotiationNeeded()
			tracks = c.engine.RemoteTracks()
		}
		var ring <-chan time.Time
		if c.ringTimer != nil {
			ring = c.ringTimer.C
		}

		select {
		case <-c.done:
			c.teardown("shutdown", false)
			return
		case ev := <-c.events:
			c.handle(ev)
		case <-reneg:
			c.handleRenegotiationNeeded()
		case t := <-tracks:
			if c.cfg.OnRemoteTrack != nil {
				c.cfg.OnRemoteTrack(t)
			}
		case <-ring:
			c.ringTimer = nil
			c.handleRingTimeout()
		}
	}
}

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case evSignal:
		c.handleSignal(ev.msg)
	case evStartCall:
		c.handleStartCall(ev.target)
	case evEndCall:
		c.teardown("ended locally", true)
	case evToggleAudio:
		if c.localMedia != nil {
			muted := c.localMedia.ToggleAudio()
			c.mu.Lock()
			c.muted = muted
			c.mu.Unlock()
		}
	case evToggleVideo:
		if c.localMedia != nil {
			hidden := c.localMedia.ToggleVideo()
			c.mu.Lock()
			c.hidden = hidden
			c.mu.Unlock()
		}
	case evTransportLost:
		c.teardown("transport lost", false)
	}
}

func (c *Controller) handleSignal(msg models.SignalMessage) {
	switch msg.Type {
	case models.SignalTypeJoinRoom:
		if c.cfg.OnJoined != nil {
			c.cfg.OnJoined(msg.RoomID, msg.Identity)
		}
	case models.SignalTypeUserJoined:
		c.mu.Lock()
		c.remotePeer = msg.From
		c.mu.Unlock()
		if c.cfg.OnPeerJoined != nil {
			c.cfg.OnPeerJoined(msg.Identity, msg.From)
		}
	case models.SignalTypeIncomingCall:
		c.handleIncomingCall(msg)
	case models.SignalTypeCallAccepted:
		c.handleCallAccepted(msg)
	case models.SignalTypeNegoNeeded:
		c.handleRemoteRenegotiation(msg)
	case models.SignalTypeNegoFinal:
		c.handleRenegotiationFinal(msg)
	case models.SignalTypeCallEnded:
		if msg.From == c.currentPeer() && c.Phase() != PhaseIdle {
			c.teardown("peer ended the call", false)
		}
	case models.SignalTypeError:
		log.Printf("relay error: %s", msg.Error)
	default:
		log.Printf("unexpected signal %q", msg.Type)
	}
}

// handleStartCall is the caller path: acquire media, build a fresh
// connection, produce the offer, send it, ring.
func (c *Controller) handleStartCall(target string) {
	if c.Phase() != PhaseIdle {
		log.Printf("start call ignored in phase %s", c.Phase())
		return
	}
	if target == "" {
		target = c.currentRemotePeer()
	}
	if target == "" {
		log.Printf("start call: no peer in room")
		return
	}

	c.setPhase(PhaseAwaitingLocalMedia)
	if !c.setupSession() {
		return
	}

	offer, err := c.engine.CreateOffer()
	if err != nil {
		c.protocolFailure(err)
		return
	}
	if err := c.cfg.Transport.Send(models.SignalMessage{
		Type:  models.SignalTypeUserCall,
		To:    target,
		Offer: &offer,
	}); err != nil {
		c.protocolFailure(err)
		return
	}

	c.mu.Lock()
	c.peerConn = target
	c.mu.Unlock()
	c.setPhase(PhaseOfferSent)
	if c.cfg.RingTimeout > 0 {
		c.ringTimer = time.NewTimer(c.cfg.RingTimeout)
	}
}

// handleIncomingCall is the callee path: acquire media, answer, and
// consider the base handshake complete without waiting for an ack.
func (c *Controller) handleIncomingCall(msg models.SignalMessage) {
	if c.Phase() != PhaseIdle {
		log.Printf("incoming call from %s ignored in phase %s", msg.From, c.Phase())
		return
	}
	if msg.Offer == nil {
		log.Printf("incoming call from %s without offer", msg.From)
		return
	}

	c.setPhase(PhaseAwaitingLocalMedia)
	if !c.setupSession() {
		return
	}

	answer, err := c.engine.CreateAnswer(*msg.Offer)
	if err != nil {
		c.protocolFailure(err)
		return
	}
	if err := c.cfg.Transport.Send(models.SignalMessage{
		Type:   models.SignalTypeCallAccepted,
		To:     msg.From,
		Answer: &answer,
	}); err != nil {
		c.protocolFailure(err)
		return
	}

	c.mu.Lock()
	c.peerConn = msg.From
	c.mu.Unlock()
	c.setPhase(PhaseAnswerSent)
	c.setPhase(PhaseEstablished)
	if c.cfg.OnEstablished != nil {
		c.cfg.OnEstablished()
	}
}

func (c *Controller) handleCallAccepted(msg models.SignalMessage) {
	if c.Phase() != PhaseOfferSent || msg.From != c.currentPeer() {
		log.Printf("call-accepted from %s ignored in phase %s", msg.From, c.Phase())
		return
	}
	if msg.Answer == nil {
		log.Printf("call-accepted from %s without answer", msg.From)
		return
	}

	c.stopRingTimer()
	if err := c.engine.ApplyAnswer(*msg.Answer); err != nil {
		c.protocolFailure(err)
		return
	}
	c.setPhase(PhaseEstablished)
	if c.cfg.OnEstablished != nil {
		c.cfg.OnEstablished()
	}
}

// handleRenegotiationNeeded reacts to the engine's notification that a
// fresh offer/answer round is required. While one round is in flight,
// further triggers are deferred, not dropped.
func (c *Controller) handleRenegotiationNeeded() {
	if c.Phase() != PhaseEstablished {
		// Pre-establishment firings are covered by the initial handshake.
		return
	}
	if c.pendingRenegotiation {
		c.renegotiationDeferred = true
		return
	}
	c.startRenegotiation()
}

func (c *Controller) startRenegotiation() {
	offer, err := c.engine.CreateOffer()
	if err != nil {
		c.protocolFailure(err)
		return
	}
	if err := c.cfg.Transport.Send(models.SignalMessage{
		Type:  models.SignalTypeNegoNeeded,
		To:    c.currentPeer(),
		Offer: &offer,
	}); err != nil {
		c.protocolFailure(err)
		return
	}
	c.pendingRenegotiation = true
}

func (c *Controller) handleRemoteRenegotiation(msg models.SignalMessage) {
	if c.Phase() != PhaseEstablished || msg.From != c.currentPeer() {
		log.Printf("peer-nego-needed from %s ignored in phase %s", msg.From, c.Phase())
		return
	}
	if msg.Offer == nil {
		return
	}

	answer, err := c.engine.CreateAnswer(*msg.Offer)
	if err != nil {
		c.protocolFailure(err)
		return
	}
	if err := c.cfg.Transport.Send(models.SignalMessage{
		Type:   models.SignalTypeNegoDone,
		To:     msg.From,
		Answer: &answer,
	}); err != nil {
		c.protocolFailure(err)
	}
}

func (c *Controller) handleRenegotiationFinal(msg models.SignalMessage) {
	if c.Phase() != PhaseEstablished || !c.pendingRenegotiation || msg.From != c.currentPeer() {
		log.Printf("peer-nego-final from %s ignored", msg.From)
		return
	}
	if msg.Answer == nil {
		return
	}

	if err := c.engine.ApplyAnswer(*msg.Answer); err != nil {
		c.protocolFailure(err)
		return
	}
	c.pendingRenegotiation = false

	// A deferred trigger is re-issued exactly once, now that the
	// in-flight round has resolved.
	if c.renegotiationDeferred {
		c.renegotiationDeferred = false
		c.startRenegotiation()
	}
}

func (c *Controller) handleRingTimeout() {
	if c.Phase() != PhaseOfferSent {
		return
	}
	log.Printf("no answer from %s within %s", c.currentPeer(), c.cfg.RingTimeout)
	c.teardown("no answer", true)
}

// setupSession acquires local media and builds the per-call engine.
// On failure the controller returns to Idle having sent nothing.
func (c *Controller) setupSession() bool {
	lm, err := c.cfg.Media.Acquire()
	if err != nil {
		if errors.Is(err, media.ErrMediaUnavailable) {
			log.Printf("call aborted: %v", err)
		} else {
			log.Printf("media acquisition failed: %v", err)
		}
		c.setPhase(PhaseIdle)
		return false
	}
	c.localMedia = lm

	eng, err := c.cfg.NewEngine(lm)
	if err != nil {
		log.Printf("engine setup failed: %v", err)
		c.releaseSession()
		c.setPhase(PhaseIdle)
		return false
	}
	c.engine = eng
	return true
}

// protocolFailure handles endpoint-local misuse of the negotiation
// engine: logged, call forced to Ended.
func (c *Controller) protocolFailure(err error) {
	log.Printf("negotiation failure: %v", err)
	c.teardown("negotiation failure", true)
}

// teardown releases the connection and local capture on every exit
// path, then performs the explicit Ended -> Idle reset.
func (c *Controller) teardown(reason string, notifyPeer bool) {
	peerID := c.currentPeer()
	if c.Phase() == PhaseIdle && c.engine == nil && c.localMedia == nil {
		return
	}

	c.stopRingTimer()

	if notifyPeer && peerID != "" {
		if err := c.cfg.Transport.Send(models.SignalMessage{
			Type: models.SignalTypeCallEnded,
			To:   peerID,
		}); err != nil {
			log.Printf("call-ended to %s: %v", peerID, err)
		}
	}

	c.releaseSession()
	c.pendingRenegotiation = false
	c.renegotiationDeferred = false

	c.setPhase(PhaseEnded)
	if c.cfg.OnEnded != nil {
		c.cfg.OnEnded(reason)
	}

	c.mu.Lock()
	c.peerConn = ""
	c.muted = false
	c.hidden = false
	c.mu.Unlock()
	c.setPhase(PhaseIdle)
}

func (c *Controller) releaseSession() {
	if c.engine != nil {
		if err := c.engine.Close(); err != nil {
			log.Printf("engine close: %v", err)
		}
		c.engine = nil
	}
	if c.localMedia != nil {
		if err := c.localMedia.Close(); err != nil {
			log.Printf("media release: %v", err)
		}
		c.localMedia = nil
	}
}

func (c *Controller) stopRingTimer() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

func (c *Controller) currentPeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerConn
}

func (c *Controller) currentRemotePeer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remotePeer
}
