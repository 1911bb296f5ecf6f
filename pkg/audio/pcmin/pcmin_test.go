package pcmin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexidrill/lexidrill/pkg/audio"
)

func writePCM(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.pcm")
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write pcm: %v", err)
	}
	return path
}

func TestDevice_SlicesIntoFrames(t *testing.T) {
	t.Parallel()

	// Three full 20 ms frames at 16 kHz mono (640 bytes each) plus a 100 byte
	// tail.
	path := writePCM(t, 3*640+100)
	dev, err := NewDevice(path)
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}

	stream, err := dev.Open(t.Context(), audio.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer stream.Close()

	var frames []audio.Frame
	for f := range stream.Frames() {
		frames = append(frames, f)
	}

	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	for i := 0; i < 3; i++ {
		if len(frames[i].PCM) != 640 {
			t.Errorf("frame %d size = %d, want 640", i, len(frames[i].PCM))
		}
		if frames[i].SampleRate != 16000 || frames[i].Channels != 1 {
			t.Errorf("frame %d format = %d Hz / %d ch", i, frames[i].SampleRate, frames[i].Channels)
		}
	}
	if len(frames[3].PCM) != 100 {
		t.Errorf("tail frame size = %d, want 100", len(frames[3].PCM))
	}

	// Timestamps advance by the frame duration.
	if frames[1].Timestamp != 20*time.Millisecond {
		t.Errorf("frame 1 timestamp = %v, want 20ms", frames[1].Timestamp)
	}
}

func TestDevice_MissingFile(t *testing.T) {
	t.Parallel()

	dev, err := NewDevice(filepath.Join(t.TempDir(), "nope.pcm"))
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	if _, err := dev.Open(t.Context(), audio.StreamConfig{}); err == nil {
		t.Fatal("Open succeeded on a missing file")
	}
}

func TestNewDevice_RequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := NewDevice(""); err == nil {
		t.Fatal("NewDevice accepted an empty path")
	}
}

func TestStream_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	path := writePCM(t, 640)
	dev, _ := NewDevice(path)
	stream, err := dev.Open(t.Context(), audio.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	audio.Drain(stream.Frames())
}
