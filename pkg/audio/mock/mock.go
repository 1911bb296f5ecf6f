// Package mock provides test doubles for the audio package interfaces.
//
// Use Device to control whether opening the capture device succeeds, and
// Stream to feed controlled frames into a [audio.Capture] under test.
package mock

import (
	"context"
	"sync"

	"github.com/lexidrill/lexidrill/pkg/audio"
)

// OpenCall records a single invocation of Device.Open.
type OpenCall struct {
	// Cfg is the stream config passed to Open.
	Cfg audio.StreamConfig
}

// Device is a mock implementation of audio.Device.
type Device struct {
	mu sync.Mutex

	// Stream is returned by Open. If nil, Open returns a new default Stream.
	Stream audio.Stream

	// OpenErr, if non-nil, is returned as the error from every Open call.
	OpenErr error

	// OpenCalls records every call to Open.
	OpenCalls []OpenCall
}

// Open records the call and returns Stream, OpenErr.
func (d *Device) Open(_ context.Context, cfg audio.StreamConfig) (audio.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls = append(d.OpenCalls, OpenCall{Cfg: cfg})
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	if d.Stream != nil {
		return d.Stream, nil
	}
	return NewStream(), nil
}

// OpenCallCount returns the number of Open calls. Thread-safe.
func (d *Device) OpenCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// Ensure Device implements audio.Device at compile time.
var _ audio.Device = (*Device)(nil)

// Stream is a mock implementation of audio.Stream. Tests push frames into
// FramesCh (via Push or directly) and close it (or call Close) to end the
// stream.
type Stream struct {
	mu sync.Mutex

	// FramesCh is the channel returned by Frames().
	FramesCh chan audio.Frame

	// CloseErr, if non-nil, is returned by the first Close call.
	CloseErr error

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	closeOnce sync.Once
}

// NewStream returns a Stream with a buffered frame channel ready for use.
func NewStream() *Stream {
	return &Stream{FramesCh: make(chan audio.Frame, 64)}
}

// Push sends a frame into the stream. Panics if the stream was closed.
func (s *Stream) Push(f audio.Frame) { s.FramesCh <- f }

// Frames returns FramesCh.
func (s *Stream) Frames() <-chan audio.Frame { return s.FramesCh }

// Close records the call and closes FramesCh exactly once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.CloseErr
		close(s.FramesCh)
	})
	s.mu.Lock()
	s.CloseCallCount++
	s.mu.Unlock()
	return err
}

// CloseCount returns the number of Close calls. Thread-safe.
func (s *Stream) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

// Ensure Stream implements audio.Stream at compile time.
var _ audio.Stream = (*Stream)(nil)
