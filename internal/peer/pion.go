package peer

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/mossy-p/peercall/internal/models"
)

// Config parameterizes the underlying Pion peer connection.
type Config struct {
	// ICEServers are STUN/TURN URLs, passed through opaquely.
	ICEServers []string
	// LoggerFactory, when set, is handed to Pion's setting engine.
	LoggerFactory logging.LoggerFactory
	// ConfigureMedia registers codecs on the media engine. The local
	// capture layer provides one when sending; nil falls back to the
	// default codec set (receive-only).
	ConfigureMedia func(*webrtc.MediaEngine) error
}

// New builds an Engine over a freshly constructed Pion peer connection.
// One engine per call attempt; Close destroys the connection.
func New(cfg Config) (*Engine, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if cfg.ConfigureMedia != nil {
		if err := cfg.ConfigureMedia(mediaEngine); err != nil {
			return nil, fmt.Errorf("configure media engine: %w", err)
		}
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	// Generous ICE timeouts so a brief NAT hiccup does not immediately
	// terminate the call.
	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)
	if cfg.LoggerFactory != nil {
		se.LoggerFactory = cfg.LoggerFactory
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
		webrtc.WithSettingEngine(se),
	)

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: cfg.ICEServers},
		},
	})
	if err != nil {
		return nil, err
	}

	e := newEngine(&pionConn{pc: pc})

	pc.OnNegotiationNeeded(e.notifyRenegotiationNeeded)
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		e.notifyRemoteTrack(RemoteTrack{
			ID:   track.ID(),
			Kind: track.Kind().String(),
		})
	})

	return e, nil
}

// AddTrack attaches an outgoing media track to the connection. Adding a
// track after establishment makes the connection request renegotiation.
func (e *Engine) AddTrack(track webrtc.TrackLocal) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	return e.conn.AddTrack(track)
}

// pionConn adapts *webrtc.PeerConnection to the engine's sessionConn.
type pionConn struct {
	pc *webrtc.PeerConnection
}

func (p *pionConn) CreateOffer() (models.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return models.SessionDescription{}, err
	}
	return fromPion(offer), nil
}

func (p *pionConn) CreateAnswer() (models.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return models.SessionDescription{}, err
	}
	return fromPion(answer), nil
}

func (p *pionConn) SetLocalDescription(desc models.SessionDescription) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	return p.pc.SetLocalDescription(sd)
}

func (p *pionConn) SetRemoteDescription(desc models.SessionDescription) error {
	sd, err := toPion(desc)
	if err != nil {
		return err
	}
	return p.pc.SetRemoteDescription(sd)
}

func (p *pionConn) AddTrack(track webrtc.TrackLocal) error {
	_, err := p.pc.AddTrack(track)
	return err
}

func (p *pionConn) Close() error {
	return p.pc.Close()
}

func fromPion(desc webrtc.SessionDescription) models.SessionDescription {
	return models.SessionDescription{
		Type: desc.Type.String(),
		SDP:  desc.SDP,
	}
}

func toPion(desc models.SessionDescription) (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch desc.Type {
	case "offer":
		t = webrtc.SDPTypeOffer
	case "answer":
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unsupported sdp type %q", desc.Type)
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}, nil
}
