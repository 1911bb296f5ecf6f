package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxLifetime bounds how long a capture session may run before it
// self-terminates. Keeps the device from being held forever when the user
// never answers.
const DefaultMaxLifetime = 30 * time.Second

// defaultConsumerBuffer is the per-consumer channel buffer size.
const defaultConsumerBuffer = 64

// ErrCaptureStarted is returned by Subscribe and Start when the capture's
// dispatch loop is already running.
var ErrCaptureStarted = errors.New("audio: capture already started")

// CaptureConfig configures a [Capture].
type CaptureConfig struct {
	// MaxLifetime is the maximum capture duration before self-termination.
	// Zero selects [DefaultMaxLifetime].
	MaxLifetime time.Duration

	// OnLevel, when non-nil, is invoked once per frame with the normalized
	// RMS amplitude (0..1). Drives level-meter UIs. The callback runs on the
	// dispatch goroutine and must not block or call Close.
	OnLevel func(level float64)

	// BufferSize is the per-consumer channel buffer. Zero selects a default.
	BufferSize int
}

// Capture fans one live [Stream] out to all registered consumers.
//
// Frames are dispatched in original order and are neither duplicated nor
// dropped while the capture is active. Once stopping begins, via [Capture.Close],
// the max-lifetime timer, or the source stream ending, no further frames
// reach any consumer: the stopping flag is checked before every dispatch
// because device teardown is asynchronous and must not race with late frames.
//
// All methods are safe for concurrent use. Close is idempotent.
type Capture struct {
	stream Stream
	cfg    CaptureConfig

	mu        sync.Mutex
	consumers []chan Frame
	started   bool

	stopping  atomic.Bool
	stopReq   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

// NewCapture wraps stream in an unstarted Capture. The capture takes
// ownership of the stream and closes it during teardown.
func NewCapture(stream Stream, cfg CaptureConfig) *Capture {
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = DefaultMaxLifetime
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultConsumerBuffer
	}
	return &Capture{
		stream:  stream,
		cfg:     cfg,
		stopReq: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Subscribe registers a new consumer and returns its frame channel. All
// consumers must be registered before Start; the channel is closed when the
// capture stops.
func (c *Capture) Subscribe() (<-chan Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil, ErrCaptureStarted
	}
	ch := make(chan Frame, c.cfg.BufferSize)
	c.consumers = append(c.consumers, ch)
	return ch, nil
}

// Start launches the dispatch loop. Returns [ErrCaptureStarted] if called
// twice.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrCaptureStarted
	}
	c.started = true
	go c.run()
	return nil
}

// run is the single dispatch goroutine. It owns frame ordering: every frame
// is delivered to every consumer, in registration order, before the next
// frame is read from the stream.
func (c *Capture) run() {
	defer c.finish()

	lifetime := time.NewTimer(c.cfg.MaxLifetime)
	defer lifetime.Stop()

	frames := c.stream.Frames()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if c.stopping.Load() {
				return
			}
			if c.cfg.OnLevel != nil {
				c.cfg.OnLevel(rmsLevel(frame.PCM))
			}
			for _, ch := range c.snapshotConsumers() {
				select {
				case ch <- frame:
				case <-c.stopReq:
					return
				}
			}
		case <-lifetime.C:
			c.stopping.Store(true)
			return
		case <-c.stopReq:
			return
		}
	}
}

// finish tears down stream and consumer channels after the dispatch loop
// exits, then signals Done.
func (c *Capture) finish() {
	c.stopping.Store(true)
	_ = c.stream.Close()

	c.mu.Lock()
	consumers := c.consumers
	c.consumers = nil
	c.mu.Unlock()

	for _, ch := range consumers {
		close(ch)
	}
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Capture) snapshotConsumers() []chan Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumers
}

// Stopping reports whether teardown has begun. Once true, no further frames
// are delivered to any consumer.
func (c *Capture) Stopping() bool { return c.stopping.Load() }

// Done returns a channel that is closed once the capture has fully stopped:
// the dispatch loop has exited, the stream is closed, and all consumer
// channels are closed.
func (c *Capture) Done() <-chan struct{} { return c.done }

// Close stops the capture. It is idempotent and safe to call from any
// goroutine (except the OnLevel callback); wait on [Capture.Done] for the
// teardown to complete.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		c.stopping.Store(true)
		close(c.stopReq)

		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if !started {
			// No dispatch loop to run finish for us.
			c.finish()
		}
	})
	return nil
}

// rmsLevel computes the normalized RMS amplitude (0..1) of 16-bit
// little-endian PCM samples.
func rmsLevel(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum/float64(n)) / 32768
}

// Exclusive enforces that at most one capture session is active per UI
// surface. Activating a new session fully tears down the previous one first.
//
// All methods are safe for concurrent use.
type Exclusive struct {
	mu      sync.Mutex
	current *Capture
}

// Activate tears down any previous capture (waiting for its teardown to
// complete), opens a fresh stream on device, and returns a new unstarted
// [Capture]. The caller subscribes its consumers and then calls Start.
func (e *Exclusive) Activate(ctx context.Context, device Device, scfg StreamConfig, ccfg CaptureConfig) (*Capture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		_ = e.current.Close()
		<-e.current.Done()
		e.current = nil
	}

	stream, err := device.Open(ctx, scfg)
	if err != nil {
		return nil, fmt.Errorf("audio: open device: %w", err)
	}
	c := NewCapture(stream, ccfg)
	e.current = c
	return c, nil
}

// Deactivate stops c if it is the active capture. Safe to call when nothing
// is active or with a capture that was already replaced.
func (e *Exclusive) Deactivate(c *Capture) {
	if c == nil {
		return
	}
	_ = c.Close()
	<-c.Done()

	e.mu.Lock()
	if e.current == c {
		e.current = nil
	}
	e.mu.Unlock()
}
