// Package capture holds the camera and microphone handle shared by an
// interview session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrPermissionDenied = errors.New("permission to use the camera or microphone was denied")
	ErrDeviceNotFound   = errors.New("no camera or microphone was found")
	ErrUnavailable      = errors.New("capture device is unavailable")
)

// Kind is the media type of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one live media source.
type Track interface {
	Kind() Kind
	// Live reports whether the track has not ended.
	Live() bool
	Stop()
}

// Stream is a set of tracks opened together.
type Stream interface {
	Tracks() []Track
	// AudioOnly returns a view over the audio tracks of the same stream.
	AudioOnly() Stream
}

// Device opens platform media streams.
type Device interface {
	Open(ctx context.Context, video bool) (Stream, error)
}

// Handle is a stream shared by the session for its whole lifetime.
type Handle struct {
	stream Stream
	video  bool
}

// Stream returns the underlying stream.
func (h *Handle) Stream() Stream { return h.stream }

// Video reports whether the handle was opened with a camera.
func (h *Handle) Video() bool { return h.video }

// Live reports whether at least one track has not ended.
func (h *Handle) Live() bool {
	if h == nil || h.stream == nil {
		return false
	}
	for _, t := range h.stream.Tracks() {
		if t.Live() {
			return true
		}
	}
	return false
}

func (h *Handle) hasLive(kind Kind) bool {
	for _, t := range h.stream.Tracks() {
		if t.Kind() == kind && t.Live() {
			return true
		}
	}
	return false
}

// Adapter hands out one shared Handle and reuses it while it is live.
type Adapter struct {
	device Device

	mu      sync.Mutex
	current *Handle
}

// NewAdapter creates an adapter over a device.
func NewAdapter(d Device) *Adapter {
	return &Adapter{device: d}
}

// Acquire returns the current handle if it is still live and covers the
// requested media, otherwise it opens a new stream.
func (a *Adapter) Acquire(ctx context.Context, video bool) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if h := a.current; h.Live() && (!video || h.hasLive(KindVideo)) {
		return h, nil
	}
	if a.current != nil {
		stopAll(a.current.stream)
		a.current = nil
	}

	stream, err := a.device.Open(ctx, video)
	if err != nil {
		return nil, classify(err)
	}
	a.current = &Handle{stream: stream, video: video}
	return a.current, nil
}

// Release stops every track of h. Releasing a nil or already released
// handle is a no-op.
func (a *Adapter) Release(h *Handle) {
	if h == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	stopAll(h.stream)
	if a.current == h {
		a.current = nil
	}
}

func stopAll(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

func classify(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// Message returns the retry prompt shown for a capture error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Camera or microphone access was denied. Allow access and try again."
	case errors.Is(err, ErrDeviceNotFound):
		return "No camera or microphone was found. Connect a device and try again."
	default:
		return "Unable to access the camera or microphone. Please try again."
	}
}
