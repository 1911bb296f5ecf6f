package whisper

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"testing"

	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

// testModelPath returns the path to a whisper GGML model for integration
// tests. It reads from the WHISPER_MODEL_PATH environment variable. If unset
// the test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping whisper model test")
	}
	return p
}

func TestConstrain(t *testing.T) {
	g := recognizer.NewGrammar("vaca", "perro", "león")

	cases := []struct {
		name string
		text string
		want string
	}{
		{"exact word", "vaca", "vaca"},
		{"uppercase", "Vaca", "vaca"},
		{"trailing punctuation", "Vaca.", "vaca"},
		{"embedded in sentence", "I think it's a perro, maybe", "perro"},
		{"non-ascii word", "¡León!", "león"},
		{"first grammar token wins", "perro vaca", "perro"},
		{"out of vocabulary", "elephant", recognizer.Unknown},
		{"empty text", "", recognizer.Unknown},
		{"punctuation only", "...", recognizer.Unknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Constrain(tc.text, g); got != tc.want {
				t.Errorf("Constrain(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestNew_RequiresModelPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("New accepted an empty model path")
	}
}

// pcm16 packs int16 samples into little-endian PCM bytes.
func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestComputeRMS(t *testing.T) {
	if got := computeRMS(nil); got != 0 {
		t.Errorf("RMS of empty buffer = %v, want 0", got)
	}
	if got := computeRMS(pcm16(0, 0, 0, 0)); got != 0 {
		t.Errorf("RMS of silence = %v, want 0", got)
	}
	got := computeRMS(pcm16(10000, -10000, 10000, -10000))
	if math.Abs(got-10000) > 1 {
		t.Errorf("RMS of square wave = %v, want ~10000", got)
	}
}

func TestChunkDurationMs(t *testing.T) {
	// 16 kHz mono 16-bit: 32 bytes per millisecond.
	if got := chunkDurationMs(make([]byte, 320), 16000, 1); got != 10 {
		t.Errorf("duration = %d ms, want 10", got)
	}
	if got := chunkDurationMs(make([]byte, 320), 0, 1); got != 0 {
		t.Errorf("duration with zero sample rate = %d, want 0", got)
	}
}

func TestPCMToFloat32Mono(t *testing.T) {
	// Stereo frame (16384, -16384) should average to 0.
	out := pcmToFloat32Mono(pcm16(16384, -16384, 32767, 32767), 2)
	if len(out) != 2 {
		t.Fatalf("got %d frames, want 2", len(out))
	}
	if math.Abs(float64(out[0])) > 1e-6 {
		t.Errorf("averaged frame = %v, want 0", out[0])
	}
	if out[1] < 0.99 || out[1] > 1.0 {
		t.Errorf("full-scale frame = %v, want ~1.0", out[1])
	}
}

// ---- instance lifecycle tests ----

// newTestInstance builds an instance without a model. Paths that never reach
// inference can run without whisper.cpp weights.
func newTestInstance() *instance {
	inst := &instance{
		grammar:             recognizer.NewGrammar("vaca"),
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		channels:            1,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,

		audioCh:  make(chan []byte, 256),
		partials: make(chan recognizer.Result, 64),
		results:  make(chan recognizer.Result, 4),
		done:     make(chan struct{}),
	}
	inst.wg.Add(1)
	go inst.processLoop(context.Background())
	return inst
}

// Audio queued but not yet consumed when Close lands must still be drained
// through the silence detector before the channels close.
func TestClose_SilenceOnlyClosesWithoutResult(t *testing.T) {
	t.Parallel()

	inst := newTestInstance()
	if err := inst.SendAudio(make([]byte, 640)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := inst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-inst.Results(); ok {
		t.Fatal("silence-only utterance produced a terminal result")
	}
}

// The terminal result for a Close-triggered flush is emitted after shutdown
// has begun; it must be delivered every time, never dropped.
func TestInstance_CloseFlushDeliversFinal(t *testing.T) {
	p, err := New(testModelPath(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	inst, err := p.Start(context.Background(), recognizer.NewGrammar("vaca"), recognizer.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Half a second of loud tone with no trailing silence: only the
	// Close-triggered flush can emit the terminal result.
	tone := make([]byte, 16000)
	for i := 0; i+1 < len(tone); i += 2 {
		s := int16(10000 * math.Sin(2*math.Pi*440*float64(i/2)/16000))
		binary.LittleEndian.PutUint16(tone[i:], uint16(s))
	}
	if err := inst.SendAudio(tone); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if err := inst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	res, ok := <-inst.Results()
	if !ok {
		t.Fatal("results closed without the flushed terminal result")
	}
	if !res.Final {
		t.Errorf("result = %+v, want a terminal result", res)
	}
}
