// Package media acquires and releases local camera/microphone capture
// for a call. Capture is platform-specific: the Linux path uses
// pion/mediadevices drivers (V4L2 + malgo); elsewhere acquisition fails
// with ErrMediaUnavailable and the call attempt is aborted.
package media

import (
	"errors"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
)

// ErrMediaUnavailable: capture devices are denied, absent, or
// unsupported on this platform.
var ErrMediaUnavailable = errors.New("local media unavailable")

// Constraints selects which kinds of local media to acquire.
type Constraints struct {
	Audio bool
	Video bool
}

// Capturer owns the codec selection used both for capture and for the
// peer connection's media engine. One Capturer serves a whole process.
type Capturer struct {
	selector *mediadevices.CodecSelector
}

// ConfigureMedia registers the capture codecs on a peer connection's
// media engine so sent tracks and negotiated codecs agree.
func (c *Capturer) ConfigureMedia(me *webrtc.MediaEngine) error {
	if c.selector == nil {
		return me.RegisterDefaultCodecs()
	}
	c.selector.Populate(me)
	return nil
}

// Stream is one acquired set of local tracks. Audio/video enablement is
// tracked here: toggling mutates local track enablement only and never
// requires renegotiation.
type Stream struct {
	mu      sync.Mutex
	tracks  []mediadevices.Track
	audioOn bool
	videoOn bool
}

func newStream(tracks []mediadevices.Track) *Stream {
	return &Stream{tracks: tracks, audioOn: true, videoOn: true}
}

// Tracks returns the captured tracks for attachment to a peer connection.
func (s *Stream) Tracks() []mediadevices.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mediadevices.Track(nil), s.tracks...)
}

// ToggleAudio flips outgoing audio. Returns the new muted state.
func (s *Stream) ToggleAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioOn = !s.audioOn
	return !s.audioOn
}

// ToggleVideo flips outgoing video. Returns the new hidden state.
func (s *Stream) ToggleVideo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videoOn = !s.videoOn
	return !s.videoOn
}

// Close releases every captured track. Idempotent.
func (s *Stream) Close() error {
	s.mu.Lock()
	tracks := s.tracks
	s.tracks = nil
	s.mu.Unlock()

	var firstErr error
	for _, t := range tracks {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
