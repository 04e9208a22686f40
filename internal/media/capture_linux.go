//go:build linux && cgo

package media

import (
	"fmt"
	"log"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
)

// New builds a Capturer with VP8 video and Opus audio encoders.
func New() (*Capturer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000 // 1.5 Mbps

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &Capturer{selector: selector}, nil
}

// Acquire captures local media. GetUserMedia fails as a unit if either
// requested track cannot be opened, so it tries video+audio, then
// video-only, then audio-only before giving up with ErrMediaUnavailable.
func (c *Capturer) Acquire(want Constraints) (*Stream, error) {
	type attempt struct {
		video bool
		audio bool
		label string
	}
	attempts := []attempt{
		{want.Video, want.Audio, "video+audio"},
		{want.Video, false, "video-only"},
		{false, want.Audio, "audio-only"},
	}

	for _, a := range attempts {
		if !a.video && !a.audio {
			continue
		}

		constraints := mediadevices.MediaStreamConstraints{Codec: c.selector}
		if a.video {
			constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
				// Raw formats only: some cameras expose an MJPEG node
				// producing malformed frames that poison the encoder.
				mc.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				mc.Width = prop.IntRanged{Max: 640}
				mc.Height = prop.IntRanged{Max: 480}
			}
		}
		if a.audio {
			constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
		}

		stream, err := mediadevices.GetUserMedia(constraints)
		if err != nil {
			log.Printf("GetUserMedia (%s) failed: %v", a.label, err)
			continue
		}

		tracks := stream.GetTracks()
		for _, track := range tracks {
			track.OnEnded(func(err error) {
				if err != nil {
					log.Printf("local track ended: %v", err)
				}
			})
		}

		log.Printf("local media captured (%s) - %d tracks", a.label, len(tracks))
		return newStream(tracks), nil
	}

	return nil, fmt.Errorf("%w: all capture attempts failed", ErrMediaUnavailable)
}
