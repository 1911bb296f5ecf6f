// Package match implements the edit-distance answer classifier used for
// typed and spoken answers.
//
// Candidates are normalized (lowercased, whitespace and punctuation
// stripped) and compared against the target with Damerau-Levenshtein edit
// distance, so a transposed pair of letters counts as a single edit.
// The near threshold is asymmetric in target length: short words (4 runes or
// fewer) only tolerate a single edit, because a 3–4 letter word one edit
// away is usually a different word, not a near-miss.
package match

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Class is the outcome of classifying a candidate against a target.
type Class int

const (
	// ClassMismatch means the candidate is not plausibly the target.
	ClassMismatch Class = iota

	// ClassNear means the candidate is within the near-miss edit distance
	// of the target but not identical.
	ClassNear

	// ClassExact means the normalized candidate equals the normalized target.
	ClassExact
)

// String returns the human-readable name of the class.
func (c Class) String() string {
	switch c {
	case ClassExact:
		return "exact"
	case ClassNear:
		return "near"
	default:
		return "mismatch"
	}
}

const (
	defaultShortThreshold = 1
	defaultLongThreshold  = 2
	// defaultLongMinRunes is the minimum normalized target length at which
	// the long threshold applies ("longer than 4 characters").
	defaultLongMinRunes = 5
)

// Option is a functional option for configuring a [Classifier].
type Option func(*Classifier)

// WithShortThreshold sets the maximum edit distance classified as near for
// short targets. Default: 1.
func WithShortThreshold(d int) Option {
	return func(c *Classifier) { c.shortThreshold = d }
}

// WithLongThreshold sets the maximum edit distance classified as near for
// long targets. Default: 2.
func WithLongThreshold(d int) Option {
	return func(c *Classifier) { c.longThreshold = d }
}

// WithLongMinRunes sets the minimum normalized target length (in runes) at
// which the long threshold applies. Default: 5.
func WithLongMinRunes(n int) Option {
	return func(c *Classifier) { c.longMinRunes = n }
}

// Classifier classifies candidate answers against target words.
// All methods are safe for concurrent use; the Classifier is read-only
// after construction.
type Classifier struct {
	shortThreshold int
	longThreshold  int
	longMinRunes   int
}

// New returns a [Classifier] configured with the supplied options.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		shortThreshold: defaultShortThreshold,
		longThreshold:  defaultLongThreshold,
		longMinRunes:   defaultLongMinRunes,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify compares candidate against target and returns the match class.
// Both strings are normalized first; an empty normalized candidate against a
// non-empty target is always a mismatch.
func (c *Classifier) Classify(candidate, target string) Class {
	cand := Normalize(candidate)
	tgt := Normalize(target)

	if cand == tgt {
		return ClassExact
	}
	if cand == "" || tgt == "" {
		return ClassMismatch
	}

	threshold := c.shortThreshold
	if utf8.RuneCountInString(tgt) >= c.longMinRunes {
		threshold = c.longThreshold
	}

	if matchr.DamerauLevenshtein(cand, tgt) <= threshold {
		return ClassNear
	}
	return ClassMismatch
}

// Normalize lowercases s and strips whitespace and punctuation, keeping only
// letters and digits. Answers differing in case, spacing, or punctuation
// compare equal after normalization.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
