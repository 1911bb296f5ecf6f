// Package pcmin provides an [audio.Device] that reads raw 16-bit
// little-endian PCM from a file, FIFO, or stdin. It is the capture front-end
// for headless setups where an external tool (arecord, sox, a network relay)
// produces the audio:
//
//	arecord -f S16_LE -r 16000 -c 1 -t raw > /tmp/lexidrill.pcm
//
// Each read is sliced into fixed-duration frames so downstream consumers see
// the same cadence a live microphone would produce.
package pcmin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/lexidrill/lexidrill/pkg/audio"
)

const defaultFrameSizeMs = 20

// Device implements [audio.Device] over a named PCM source. Opening the
// device opens the underlying path; "-" means stdin.
type Device struct {
	path        string
	frameSizeMs int
}

// Option configures a [Device].
type Option func(*Device)

// WithFrameSizeMs sets the duration of emitted frames. The default is 20 ms.
func WithFrameSizeMs(ms int) Option {
	return func(d *Device) {
		if ms > 0 {
			d.frameSizeMs = ms
		}
	}
}

// NewDevice creates a Device reading from path. path must be non-empty;
// "-" selects stdin.
func NewDevice(path string, opts ...Option) (*Device, error) {
	if path == "" {
		return nil, errors.New("pcmin: path must not be empty")
	}
	d := &Device{path: path, frameSizeMs: defaultFrameSizeMs}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Open implements [audio.Device].
func (d *Device) Open(ctx context.Context, cfg audio.StreamConfig) (audio.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("pcmin: open: %w", err)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	var src io.ReadCloser
	if d.path == "-" {
		src = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(d.path)
		if err != nil {
			return nil, fmt.Errorf("pcmin: open %q: %w", d.path, err)
		}
		src = f
	}

	return newStream(src, cfg, d.frameSizeMs), nil
}

// Stream reads PCM from its source and emits fixed-size [audio.Frame] values.
type Stream struct {
	frames chan audio.Frame

	src       io.ReadCloser
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

func newStream(src io.ReadCloser, cfg audio.StreamConfig, frameSizeMs int) *Stream {
	s := &Stream{
		frames: make(chan audio.Frame, 64),
		src:    src,
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop(cfg, frameSizeMs)
	return s
}

// readLoop slices the source into frame-sized chunks. It exits on EOF, read
// error, or Close.
func (s *Stream) readLoop(cfg audio.StreamConfig, frameSizeMs int) {
	defer s.wg.Done()
	defer close(s.frames)

	frameBytes := cfg.SampleRate * cfg.Channels * 2 * frameSizeMs / 1000
	if frameBytes <= 0 {
		frameBytes = 640 // 16 kHz mono 16-bit, 20 ms
	}
	frameDur := time.Duration(frameSizeMs) * time.Millisecond
	var elapsed time.Duration

	for {
		select {
		case <-s.done:
			return
		default:
		}

		buf := make([]byte, frameBytes)
		n, err := io.ReadFull(s.src, buf)
		if n > 0 {
			frame := audio.Frame{
				PCM:        buf[:n],
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
		if err != nil {
			// EOF, short read at end of file, or the source was closed
			// under us by Close.
			return
		}
	}
}

// Frames implements [audio.Stream].
func (s *Stream) Frames() <-chan audio.Frame { return s.frames }

// Close implements [audio.Stream]. Safe to call more than once. Closing the
// source unblocks a pending read.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.src.Close()
		s.wg.Wait()
	})
	return nil
}

var _ audio.Device = (*Device)(nil)
var _ audio.Stream = (*Stream)(nil)
