package audio_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/lexidrill/lexidrill/pkg/audio"
	"github.com/lexidrill/lexidrill/pkg/audio/mock"
)

func frame(b byte) audio.Frame {
	return audio.Frame{PCM: []byte{b, 0, b, 0}, SampleRate: 16000, Channels: 1}
}

func TestCapture_FanOutPreservesOrder(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream()
	cap := audio.NewCapture(stream, audio.CaptureConfig{})

	a, err := cap.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	b, err := cap.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if err := cap.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	for i := byte(1); i <= 5; i++ {
		stream.Push(frame(i))
	}
	stream.Close()
	<-cap.Done()

	for name, ch := range map[string]<-chan audio.Frame{"a": a, "b": b} {
		var got []byte
		for f := range ch {
			got = append(got, f.PCM[0])
		}
		if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
			t.Errorf("consumer %s received %v, want [1 2 3 4 5]", name, got)
		}
	}
}

func TestCapture_SubscribeAfterStartFails(t *testing.T) {
	t.Parallel()

	cap := audio.NewCapture(mock.NewStream(), audio.CaptureConfig{})
	if err := cap.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer cap.Close()

	if _, err := cap.Subscribe(); err == nil {
		t.Fatal("Subscribe() after Start should return error")
	}
	if err := cap.Start(); err == nil {
		t.Fatal("second Start() should return error")
	}
}

func TestCapture_CloseStopsDelivery(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream()
	cap := audio.NewCapture(stream, audio.CaptureConfig{})
	ch, _ := cap.Subscribe()
	if err := cap.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	stream.Push(frame(1))
	// Wait for the first frame to be dispatched before closing.
	f := <-ch
	if f.PCM[0] != 1 {
		t.Fatalf("first frame = %v, want 1", f.PCM[0])
	}

	if err := cap.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	<-cap.Done()

	if !cap.Stopping() {
		t.Error("Stopping() = false after Close")
	}
	// Consumer channel must be closed with no further frames.
	if _, ok := <-ch; ok {
		t.Error("received frame after Close")
	}
	if stream.CloseCount() == 0 {
		t.Error("stream was not closed during teardown")
	}

	// Close is idempotent.
	if err := cap.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestCapture_MaxLifetimeSelfTerminates(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream()
	cap := audio.NewCapture(stream, audio.CaptureConfig{MaxLifetime: 20 * time.Millisecond})
	ch, _ := cap.Subscribe()
	if err := cap.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-cap.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not self-terminate after max lifetime")
	}
	if _, ok := <-ch; ok {
		t.Error("consumer channel should be closed after self-termination")
	}
}

func TestCapture_LevelCallback(t *testing.T) {
	t.Parallel()

	stream := mock.NewStream()
	levels := make(chan float64, 8)
	cap := audio.NewCapture(stream, audio.CaptureConfig{
		OnLevel: func(l float64) { levels <- l },
	})
	ch, _ := cap.Subscribe()
	if err := cap.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer cap.Close()

	// A loud frame: alternating full-scale samples.
	stream.Push(audio.Frame{PCM: []byte{0xFF, 0x7F, 0xFF, 0x7F}})
	<-ch

	select {
	case l := <-levels:
		if l <= 0.9 || l > 1.0 {
			t.Errorf("level = %v, want close to 1.0", l)
		}
	case <-time.After(time.Second):
		t.Fatal("level callback was not invoked")
	}
}

func TestCapture_CloseWithoutStart(t *testing.T) {
	t.Parallel()

	cap := audio.NewCapture(mock.NewStream(), audio.CaptureConfig{})
	if err := cap.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	select {
	case <-cap.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after Close without Start")
	}
}

func TestExclusive_ActivateTearsDownPrevious(t *testing.T) {
	t.Parallel()

	var ex audio.Exclusive
	device := &mock.Device{}

	first, err := ex.Activate(t.Context(), device, audio.StreamConfig{SampleRate: 16000, Channels: 1}, audio.CaptureConfig{})
	if err != nil {
		t.Fatalf("Activate() error: %v", err)
	}
	if err := first.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	second, err := ex.Activate(t.Context(), device, audio.StreamConfig{SampleRate: 16000, Channels: 1}, audio.CaptureConfig{})
	if err != nil {
		t.Fatalf("second Activate() error: %v", err)
	}
	defer ex.Deactivate(second)

	// The first capture must be fully stopped before the second exists.
	select {
	case <-first.Done():
	default:
		t.Error("previous capture still running after Activate")
	}
	if device.OpenCallCount() != 2 {
		t.Errorf("Open calls = %d, want 2", device.OpenCallCount())
	}

	// Deactivate is idempotent and tolerates stale captures.
	ex.Deactivate(first)
	ex.Deactivate(nil)
}
