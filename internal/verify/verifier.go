// Package verify implements the dual-grammar spoken-answer verifier.
//
// For each utterance two recognizer instances are run against the same live
// frame stream: a strict one whose grammar holds only the target word (plus
// the out-of-vocabulary sentinel), and a loose one whose grammar also holds
// the other words of the lesson. The strict recognizer can confidently
// confirm the target; the loose one can explain what was said when it was
// not the target. A small reconciliation state machine combines their
// terminal results into a single verdict.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lexidrill/lexidrill/internal/match"
	"github.com/lexidrill/lexidrill/internal/observe"
	"github.com/lexidrill/lexidrill/pkg/audio"
	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

// ErrNoAudio is returned when no audio device is available or the capture
// pipeline cannot be activated. Callers fall back to typed input.
var ErrNoAudio = errors.New("verify: audio capture unavailable")

// ErrNotReady is returned when the speech recognizer backend is unavailable
// or still loading. The current item stays unscored.
var ErrNotReady = errors.New("verify: recognizer not ready")

// Verdict is the outcome of verifying one utterance against a target word.
type Verdict int

const (
	// VerdictNone means no usable speech was recognised. The item is left
	// unscored, inviting the user to speak again.
	VerdictNone Verdict = iota

	// VerdictMismatch means a different in-lesson word was heard. Surfaced
	// to the learner but not scored.
	VerdictMismatch

	// VerdictAlmost means the utterance was a near-miss of the target.
	// Scored as incorrect but surfaced distinctly.
	VerdictAlmost

	// VerdictCorrect means the utterance matched the target.
	VerdictCorrect
)

// String returns the human-readable name of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictCorrect:
		return "correct"
	case VerdictAlmost:
		return "almost"
	case VerdictMismatch:
		return "mismatch"
	default:
		return "none"
	}
}

// Outcome is the result of one verification attempt.
type Outcome struct {
	Verdict Verdict

	// Heard is the reconciled transcript, empty when nothing usable was
	// recognised.
	Heard string
}

// Option is a functional option for configuring a [Verifier].
type Option func(*Verifier)

// WithStreamConfig sets the audio format requested from the device.
// Default: 16 kHz mono.
func WithStreamConfig(cfg audio.StreamConfig) Option {
	return func(v *Verifier) { v.streamCfg = cfg }
}

// WithCaptureConfig sets the capture pipeline configuration (max lifetime,
// level callback, buffer size).
func WithCaptureConfig(cfg audio.CaptureConfig) Option {
	return func(v *Verifier) { v.captureCfg = cfg }
}

// WithOnPartial sets a callback invoked with live non-terminal transcripts
// from the loose recognizer ("what we heard so far"). The callback runs on
// the verifier goroutine and must not block.
func WithOnPartial(fn func(text string)) Option {
	return func(v *Verifier) { v.onPartial = fn }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(v *Verifier) { v.log = log }
}

// WithMetrics sets the metric instruments. Nil records nothing.
func WithMetrics(m *observe.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// Verifier decides whether a spoken utterance matches a target word.
//
// A Verifier is safe for concurrent use, but the audio device is exclusive:
// starting a new verification tears down any capture still active from a
// previous one.
type Verifier struct {
	device     audio.Device
	provider   recognizer.Provider
	classifier *match.Classifier

	streamCfg  audio.StreamConfig
	captureCfg audio.CaptureConfig
	onPartial  func(string)
	log        *slog.Logger
	metrics    *observe.Metrics

	exclusive audio.Exclusive
}

// New returns a Verifier reading from device and recognising via provider.
// device may be nil when no audio input exists; Verify then reports
// [ErrNoAudio]. provider may be nil when no speech backend is configured;
// Verify then reports [ErrNotReady]. classifier may be nil; a default
// [match.New] classifier is used.
func New(device audio.Device, provider recognizer.Provider, classifier *match.Classifier, opts ...Option) *Verifier {
	v := &Verifier{
		device:     device,
		provider:   provider,
		classifier: classifier,
		streamCfg:  audio.StreamConfig{SampleRate: 16000, Channels: 1},
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	if v.classifier == nil {
		v.classifier = match.New()
	}
	return v
}

// Verify captures one utterance and decides whether it matches target.
// distractors are the other words of the lesson; they widen the loose
// recognizer's grammar so off-target speech can be explained rather than
// rejected.
//
// The wait is bounded by the capture pipeline's max lifetime. Teardown of
// the capture and both recognizer instances happens on every return path
// and is idempotent.
func (v *Verifier) Verify(ctx context.Context, target string, distractors []string) (Outcome, error) {
	if v.device == nil {
		return Outcome{}, ErrNoAudio
	}
	if v.provider == nil {
		return Outcome{}, ErrNotReady
	}

	strictGrammar := recognizer.NewGrammar(target, recognizer.Unknown)
	looseWords := make([]string, 0, len(distractors)+2)
	looseWords = append(looseWords, target)
	looseWords = append(looseWords, distractors...)
	looseWords = append(looseWords, recognizer.Unknown)
	looseGrammar := recognizer.NewGrammar(looseWords...)

	capture, err := v.exclusive.Activate(ctx, v.device, v.streamCfg, v.captureCfg)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNoAudio, err)
	}
	v.metrics.AddActiveCaptures(ctx, 1)
	var deactivateOnce sync.Once
	deactivate := func() {
		deactivateOnce.Do(func() {
			v.exclusive.Deactivate(capture)
			v.metrics.AddActiveCaptures(ctx, -1)
		})
	}

	// Both consumers must be registered before the dispatch loop starts so
	// neither recognizer misses leading frames.
	strictFrames, err := capture.Subscribe()
	if err != nil {
		deactivate()
		return Outcome{}, fmt.Errorf("verify: subscribe strict: %w", err)
	}
	looseFrames, err := capture.Subscribe()
	if err != nil {
		deactivate()
		return Outcome{}, fmt.Errorf("verify: subscribe loose: %w", err)
	}

	rcfg := recognizer.StreamConfig{
		SampleRate: v.streamCfg.SampleRate,
		Channels:   v.streamCfg.Channels,
	}
	strict, err := v.provider.Start(ctx, strictGrammar, rcfg)
	if err != nil {
		deactivate()
		return Outcome{}, fmt.Errorf("%w: start strict recognizer: %s", ErrNotReady, err)
	}
	loose, err := v.provider.Start(ctx, looseGrammar, rcfg)
	if err != nil {
		_ = strict.Close()
		deactivate()
		return Outcome{}, fmt.Errorf("%w: start loose recognizer: %s", ErrNotReady, err)
	}

	var pumps errgroup.Group
	pumps.Go(func() error { return v.pump(strictFrames, strict) })
	pumps.Go(func() error { return v.pump(looseFrames, loose) })

	var disposeOnce sync.Once
	dispose := func() {
		disposeOnce.Do(func() {
			deactivate()
			_ = strict.Close()
			_ = loose.Close()
			_ = pumps.Wait()
		})
	}
	defer dispose()

	if err := capture.Start(); err != nil {
		return Outcome{}, fmt.Errorf("verify: start capture: %w", err)
	}

	return v.reconcile(ctx, target, strict, loose)
}

// pump forwards captured frames into a recognizer instance until the frame
// channel closes, then closes the instance so it flushes and emits its
// terminal result. A send error abandons the instance; its contribution is
// then treated as unknown by the reconciler.
func (v *Verifier) pump(frames <-chan audio.Frame, inst recognizer.Instance) error {
	for frame := range frames {
		if err := inst.SendAudio(frame.PCM); err != nil {
			v.log.Debug("recognizer rejected audio, degrading to unknown", "error", err)
			break
		}
	}
	_ = inst.Close()
	return nil
}

// reconcile runs the per-utterance state machine over the two instances'
// result streams.
//
// A strict terminal result equal to the target concludes immediately;
// so does any partial equal to the target. Otherwise both terminal results
// are awaited, the loose one wins unless it is empty/unknown, and the
// winner is classified against the target.
func (v *Verifier) reconcile(ctx context.Context, target string, strict, loose recognizer.Instance) (Outcome, error) {
	strictResults := strict.Results()
	looseResults := loose.Results()
	strictPartials := strict.Partials()
	loosePartials := loose.Partials()

	strictFinal, looseFinal := "", ""
	strictPending, loosePending := true, true

	for strictPending || loosePending {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()

		case res, ok := <-strictResults:
			strictResults = nil
			strictPending = false
			if ok {
				strictFinal = res.Text
				if v.sameWord(res.Text, target) {
					return Outcome{Verdict: VerdictCorrect, Heard: res.Text}, nil
				}
			} else {
				// Closed without a terminal result: this side could not
				// decide, treat its contribution as unknown.
				strictFinal = recognizer.Unknown
			}

		case res, ok := <-looseResults:
			looseResults = nil
			loosePending = false
			if ok {
				looseFinal = res.Text
			} else {
				looseFinal = recognizer.Unknown
			}

		case res, ok := <-strictPartials:
			if !ok {
				strictPartials = nil
				continue
			}
			if v.sameWord(res.Text, target) {
				return Outcome{Verdict: VerdictCorrect, Heard: res.Text}, nil
			}

		case res, ok := <-loosePartials:
			if !ok {
				loosePartials = nil
				continue
			}
			if v.onPartial != nil && !recognizer.IsUnknown(res.Text) {
				v.onPartial(res.Text)
			}
			if v.sameWord(res.Text, target) {
				return Outcome{Verdict: VerdictCorrect, Heard: res.Text}, nil
			}
		}
	}

	final := looseFinal
	if recognizer.IsUnknown(final) {
		final = strictFinal
	}
	if recognizer.IsUnknown(final) {
		return Outcome{Verdict: VerdictNone}, nil
	}

	switch v.classifier.Classify(final, target) {
	case match.ClassExact:
		return Outcome{Verdict: VerdictCorrect, Heard: final}, nil
	case match.ClassNear:
		return Outcome{Verdict: VerdictAlmost, Heard: final}, nil
	default:
		return Outcome{Verdict: VerdictMismatch, Heard: final}, nil
	}
}

// sameWord reports whether a transcript is exactly the target after
// normalization. The unknown sentinel never matches.
func (v *Verifier) sameWord(text, target string) bool {
	if recognizer.IsUnknown(text) {
		return false
	}
	return match.Normalize(text) == match.Normalize(target)
}
