// Package whisper provides a recognizer backend using the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// Whisper decodes free text and has no grammar API, so the grammar constraint
// is enforced after decoding: [Constrain] snaps the transcription onto the
// instance's grammar and anything outside it becomes the out-of-vocabulary
// sentinel. Whisper is also a batch engine, not a streaming one, so the
// instance buffers PCM, segments utterances with an energy-based silence
// detector, and runs inference per utterance.
package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"unicode"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio the pipeline carries.
	bitsPerSample = 16

	// defaultRMSThreshold is the root-mean-square energy level (in 16-bit PCM
	// units) below which audio is considered silent. The maximum possible
	// value for 16-bit audio is 32 767; 300 corresponds to near-silence.
	defaultRMSThreshold = 300.0

	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "es"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// triggers inference on the accumulated speech buffer. Defaults to 500 ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(p *Provider) {
		if ms > 0 {
			p.silenceThresholdMs = ms
		}
	}
}

// WithMaxBufferDurationMs sets the maximum buffered audio duration (ms)
// before inference is forced regardless of silence. Defaults to 10 000 ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(p *Provider) {
		if ms > 0 {
			p.maxBufferDurationMs = ms
		}
	}
}

// Provider implements recognizer.Provider using the whisper.cpp Go bindings.
// The model is loaded once at construction and shared across all instances;
// each instance creates its own whisper context per inference.
type Provider struct {
	model    whisperlib.Model
	language string

	silenceThresholdMs  int
	maxBufferDurationMs int
}

// New creates a Provider that loads the whisper.cpp model from the given GGML
// file path. The caller must call Close when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:               model,
		language:            defaultLanguage,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Start opens a new recognition instance bound to grammar. The instance is
// ready to accept audio immediately.
func (p *Provider) Start(ctx context.Context, grammar recognizer.Grammar, cfg recognizer.StreamConfig) (recognizer.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	sr := cfg.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	inst := &instance{
		model:               p.model,
		grammar:             grammar,
		language:            p.language,
		sampleRate:          sr,
		channels:            ch,
		silenceThresholdMs:  p.silenceThresholdMs,
		maxBufferDurationMs: p.maxBufferDurationMs,

		audioCh:  make(chan []byte, 256),
		partials: make(chan recognizer.Result, 64),
		results:  make(chan recognizer.Result, 4),
		done:     make(chan struct{}),
	}

	inst.wg.Add(1)
	go inst.processLoop(ctx)

	return inst, nil
}

// ---- instance ---------------------------------------------------------------

// instance is a live whisper recognition session. It implements
// recognizer.Instance. All mutable state that drives silence detection and
// buffering is confined to the processLoop goroutine.
type instance struct {
	// immutable configuration (set once in Start)
	model               whisperlib.Model
	grammar             recognizer.Grammar
	language            string
	sampleRate          int
	channels            int
	silenceThresholdMs  int
	maxBufferDurationMs int

	audioCh  chan []byte
	partials chan recognizer.Result
	results  chan recognizer.Result

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a chunk of raw 16-bit little-endian signed PCM audio for
// silence analysis and buffering.
func (i *instance) SendAudio(chunk []byte) error {
	select {
	case <-i.done:
		return errors.New("whisper: instance is closed")
	default:
	}
	select {
	case i.audioCh <- chunk:
		return nil
	case <-i.done:
		return errors.New("whisper: instance is closed")
	}
}

// Partials returns the channel of interim results.
func (i *instance) Partials() <-chan recognizer.Result { return i.partials }

// Results returns the channel of terminal results.
func (i *instance) Results() <-chan recognizer.Result { return i.results }

// Close terminates the instance, running inference on any pending speech
// audio before the channels close.
func (i *instance) Close() error {
	i.once.Do(func() {
		close(i.done)
		i.wg.Wait()
	})
	return nil
}

// processLoop is the single goroutine responsible for silence detection,
// audio buffering, and inference dispatch. It exits after emitting the first
// terminal result; each utterance produces at most one.
func (i *instance) processLoop(ctx context.Context) {
	defer i.wg.Done()
	defer close(i.partials)
	defer close(i.results)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)

	bytesPerMs := i.sampleRate * i.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32 // 16 kHz mono 16-bit
	}
	maxBufferBytes := i.maxBufferDurationMs * bytesPerMs

	// doFlush runs inference on the buffered utterance and emits the
	// grammar-constrained result. Returns true once a terminal result has
	// been delivered.
	doFlush := func() bool {
		if len(buffer) == 0 || !hadSpeech {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
			return false
		}

		pcm := buffer
		buffer = nil
		hadSpeech = false
		silenceMs = 0

		text, err := i.infer(pcm)
		if err != nil {
			slog.Error("whisper inference failed", "error", err)
			return false
		}

		word := Constrain(text, i.grammar)
		select {
		case i.partials <- recognizer.Result{Text: word}:
		default:
		}
		// Unconditional send: the channel is buffered, this goroutine is the
		// only sender, and each utterance carries at most one terminal
		// result. The Close-triggered flush runs with done already closed
		// and must still deliver its result.
		i.results <- recognizer.Result{Text: word, Final: true}
		return true
	}

	// consume feeds one chunk through the silence detector. Returns true
	// once a terminal result has been delivered.
	consume := func(chunk []byte) bool {
		rms := computeRMS(chunk)
		chunkMs := chunkDurationMs(chunk, i.sampleRate, i.channels)

		if rms < defaultRMSThreshold {
			// Leading silence before any speech is discarded.
			if hadSpeech {
				silenceMs += chunkMs
				buffer = append(buffer, chunk...)
				if silenceMs >= i.silenceThresholdMs {
					return doFlush()
				}
			}
			return false
		}

		hadSpeech = true
		silenceMs = 0
		buffer = append(buffer, chunk...)
		if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
			return doFlush()
		}
		return false
	}

	// drain consumes whatever audio is still queued, then flushes. Audio
	// accepted before Close must reach the decoder.
	drain := func() {
		for {
			select {
			case chunk, ok := <-i.audioCh:
				if !ok {
					doFlush()
					return
				}
				if consume(chunk) {
					return
				}
			default:
				doFlush()
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return

		case <-i.done:
			drain()
			return

		case chunk, ok := <-i.audioCh:
			if !ok {
				doFlush()
				return
			}
			if consume(chunk) {
				return
			}
		}
	}
}

// infer converts the buffered PCM audio to float32, runs whisper.cpp
// inference on a fresh context, and returns the concatenated segment text.
func (i *instance) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, i.channels)

	// A whisper context is not thread-safe but the model can be shared, so
	// each inference gets its own context.
	wctx, err := i.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(i.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", i.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

// ---- helpers ----------------------------------------------------------------

// Constrain snaps a free-text whisper transcription onto grammar. Tokens are
// lowercased and stripped of punctuation; the first token found in the
// grammar wins. Text with no grammar token maps to the out-of-vocabulary
// sentinel.
func Constrain(text string, grammar recognizer.Grammar) string {
	for _, token := range strings.Fields(text) {
		word := strings.ToLower(strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
		if word == "" {
			continue
		}
		if grammar.Contains(word) {
			return word
		}
	}
	return recognizer.Unknown
}

// computeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer, in PCM sample units (0–32 767).
func computeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// chunkDurationMs returns the duration of a PCM audio chunk in milliseconds.
// Returns 0 for invalid inputs.
func chunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return len(chunk) * 1000 / bytesPerSec
}

// pcmToFloat32Mono converts 16-bit little-endian PCM to normalized float32
// samples in [-1, 1], averaging channels down to mono.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frames := len(pcm) / 2 / channels
	out := make([]float32, 0, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			off := (f*channels + c) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += float32(sample) / 32768
		}
		out = append(out, sum/float32(channels))
	}
	return out
}

var _ recognizer.Provider = (*Provider)(nil)
var _ recognizer.Instance = (*instance)(nil)
