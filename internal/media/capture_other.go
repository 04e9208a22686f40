//go:build !linux || !cgo

package media

import "fmt"

// New builds a Capturer without local capture support.
// Camera/mic capture via pion/mediadevices requires platform-specific
// drivers (V4L2/malgo on Linux); on other platforms Acquire fails and
// the call attempt is aborted before any message is sent.
func New() (*Capturer, error) {
	return &Capturer{}, nil
}

func (c *Capturer) Acquire(_ Constraints) (*Stream, error) {
	return nil, fmt.Errorf("%w: no capture drivers on this platform", ErrMediaUnavailable)
}
