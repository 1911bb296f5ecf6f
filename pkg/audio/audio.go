// Package audio defines the capture-side audio abstractions for lexidrill:
// the [Frame] transport unit, the [Device]/[Stream] collaborator contracts,
// and the [Capture] fan-out pipeline that distributes one live frame stream
// to multiple consumers (the strict and loose recognizers).
//
// The Device and Stream interfaces are intentionally narrow so that the quiz
// engine stays decoupled from how audio is actually acquired (OS capture
// device, Opus network transport, test double).
//
// This package lives under pkg/ because external code (alternative capture
// transports) is expected to implement [Device] and [Stream].
package audio

import (
	"context"
	"time"
)

// Frame represents a single frame of audio data flowing through the pipeline.
// Frames are the atomic unit of audio transport, captured from an input
// stream and fanned out to recognizer consumers.
type Frame struct {
	// PCM audio data, 16-bit little-endian signed samples.
	PCM []byte

	// SampleRate in Hz (e.g., 16000 for recognizer input).
	SampleRate int

	// Channels: 1 for mono (recognizer input), 2 for stereo sources.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// StreamConfig describes the audio format requested from a [Device].
type StreamConfig struct {
	// SampleRate is the requested sample rate in Hz.
	SampleRate int

	// Channels is the requested channel count.
	Channels int
}

// Stream is a live audio frame source.
//
// Implementations must be safe for concurrent use.
type Stream interface {
	// Frames returns the read-only channel of captured frames. The channel
	// is closed when the stream ends or Close is called.
	Frames() <-chan Frame

	// Close releases the underlying capture resources. It is safe to call
	// more than once; subsequent calls are no-ops and return nil.
	Close() error
}

// Device is the entry point for an audio capture provider. Acquiring a
// stream claims the (exclusive) underlying input device.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Open acquires the input device and returns a live [Stream]. The ctx
	// governs the lifetime of the open attempt only; once opened, the stream
	// remains alive until [Stream.Close] is called.
	//
	// Returns an error if the device is unavailable or permission is denied.
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)
}

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a consumer stops caring about a
// streaming channel before it is closed.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
