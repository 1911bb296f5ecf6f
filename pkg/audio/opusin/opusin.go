// Package opusin adapts an Opus packet transport to the [audio.Stream]
// interface. It lets compressed capture front-ends (a browser microphone, a
// network relay) feed the drill's verification pipeline without the engine
// knowing about codecs: each incoming Opus packet is decoded to 16-bit PCM
// and emitted as an [audio.Frame].
package opusin

import (
	"fmt"
	"sync"
	"time"

	"layeh.com/gopus"

	"github.com/lexidrill/lexidrill/pkg/audio"
)

const (
	defaultSampleRate  = 48000
	defaultChannels    = 1
	defaultFrameSizeMs = 20
)

// Config describes the Opus stream being decoded.
type Config struct {
	// SampleRate of the encoded audio in Hz. Zero selects 48000.
	SampleRate int

	// Channels of the encoded audio. Zero selects mono.
	Channels int

	// FrameSizeMs is the packet frame duration in milliseconds. Zero
	// selects 20 ms, the common Opus framing.
	FrameSizeMs int
}

// Stream decodes Opus packets from a channel into PCM [audio.Frame] values.
// It implements [audio.Stream]. Each Stream owns its own decoder because
// Opus decoder state must be maintained across consecutive packets.
type Stream struct {
	frames chan audio.Frame

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewStream starts decoding packets and returns the live Stream. The caller
// retains ownership of the packets channel and signals end-of-stream by
// closing it. Frames carry timestamps derived from the packet count.
func NewStream(packets <-chan []byte, cfg Config) (*Stream, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = defaultChannels
	}
	if cfg.FrameSizeMs <= 0 {
		cfg.FrameSizeMs = defaultFrameSizeMs
	}

	dec, err := gopus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("opusin: create decoder: %w", err)
	}

	s := &Stream{
		frames: make(chan audio.Frame, 64),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.decodeLoop(dec, packets, cfg)
	return s, nil
}

// decodeLoop drains packets, decodes each into PCM, and forwards the frame.
func (s *Stream) decodeLoop(dec *gopus.Decoder, packets <-chan []byte, cfg Config) {
	defer s.wg.Done()
	defer close(s.frames)

	frameSize := cfg.SampleRate * cfg.FrameSizeMs / 1000
	frameDur := time.Duration(cfg.FrameSizeMs) * time.Millisecond
	var elapsed time.Duration

	for {
		select {
		case <-s.done:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			pcm, err := dec.Decode(pkt, frameSize, false)
			if err != nil {
				// A corrupt packet desyncs one frame, not the stream.
				continue
			}
			frame := audio.Frame{
				PCM:        int16sToBytes(pcm),
				SampleRate: cfg.SampleRate,
				Channels:   cfg.Channels,
				Timestamp:  elapsed,
			}
			elapsed += frameDur
			select {
			case s.frames <- frame:
			case <-s.done:
				return
			}
		}
	}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Close implements [audio.Stream]. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// Ensure Stream implements audio.Stream at compile time.
var _ audio.Stream = (*Stream)(nil)

// int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, v := range pcm {
		b[i*2] = byte(v)
		b[i*2+1] = byte(v >> 8)
	}
	return b
}
