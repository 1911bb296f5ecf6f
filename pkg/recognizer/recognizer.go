// Package recognizer defines the contract for grammar-constrained speech
// recognizers.
//
// A recognizer instance is bound at construction time to a closed vocabulary
// (its [Grammar]) and hypothesises only over that vocabulary. Once opened, an
// instance accepts raw PCM audio chunks and emits two streams of [Result]
// values: low-latency partials for live feedback and terminal results when
// the instance decides the utterance is finished. Changing the vocabulary
// requires discarding the instance and creating a new one.
//
// Implementations must be safe for concurrent use. Audio input and result
// output channels are goroutine-safe by construction.
package recognizer

import (
	"context"
	"strings"
)

// Unknown is the out-of-vocabulary sentinel. Recognizers emit it when the
// utterance cannot be explained by any grammar word.
const Unknown = "[unk]"

// Grammar is an immutable list of lowercase candidate words bound to a
// recognizer instance at construction time.
type Grammar struct {
	words []string
	set   map[string]struct{}
}

// NewGrammar builds a Grammar from the given words. Words are lowercased and
// trimmed; duplicates and empty strings are dropped. Input order is preserved
// for the surviving words.
func NewGrammar(words ...string) Grammar {
	g := Grammar{
		words: make([]string, 0, len(words)),
		set:   make(map[string]struct{}, len(words)),
	}
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, dup := g.set[w]; dup {
			continue
		}
		g.words = append(g.words, w)
		g.set[w] = struct{}{}
	}
	return g
}

// Words returns a copy of the grammar's word list.
func (g Grammar) Words() []string {
	out := make([]string, len(g.words))
	copy(out, g.words)
	return out
}

// Contains reports whether word (case-insensitive) is part of the grammar.
func (g Grammar) Contains(word string) bool {
	_, ok := g.set[strings.ToLower(strings.TrimSpace(word))]
	return ok
}

// Len returns the number of words in the grammar.
func (g Grammar) Len() int { return len(g.words) }

// IsUnknown reports whether text carries no usable recognition content:
// an empty string or the out-of-vocabulary sentinel.
func IsUnknown(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || t == Unknown
}

// StreamConfig describes the audio format delivered to a recognizer instance.
type StreamConfig struct {
	// SampleRate is the PCM sample rate in Hz (e.g., 16000).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, which is what
	// most recognizer backends require.
	Channels int
}

// Result is a recognition event emitted by an [Instance].
type Result struct {
	// Text is the recognised word, [Unknown], or empty.
	Text string

	// Final marks a terminal result: the instance has decided the utterance
	// is finished. Each utterance produces at most one terminal result.
	Final bool
}

// Instance is a live grammar-constrained recognition session.
//
// Callers must call Close when the instance is no longer needed; failing to
// do so may leak goroutines and connections inside the implementation.
// All methods must be safe for concurrent use.
type Instance interface {
	// SendAudio delivers a chunk of raw PCM audio for recognition. The chunk
	// must match the StreamConfig agreed at Start. Calling SendAudio after
	// Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel of interim results. Partials are
	// advisory and must never be treated as terminal. The channel is closed
	// when the instance ends.
	Partials() <-chan Result

	// Results returns a read-only channel of terminal results. The channel
	// is closed when the instance ends; a close without any value means the
	// instance could not produce a result (callers should treat that as
	// [Unknown]).
	Results() <-chan Result

	// Close terminates the instance, flushes pending audio, and releases all
	// associated resources. After Close returns, both channels are closed.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider constructs recognizer instances bound to a grammar.
//
// Implementations must be safe for concurrent use; multiple instances may be
// open simultaneously (e.g., a strict and a loose recognizer over the same
// audio).
type Provider interface {
	// Start opens a new instance constrained to grammar. The returned
	// Instance is ready to accept audio immediately. The caller owns it and
	// must call Close when done.
	Start(ctx context.Context, grammar Grammar, cfg StreamConfig) (Instance, error)
}
