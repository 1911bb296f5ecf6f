// Package content manages the vocabulary material the quiz engine drills:
// items (words with their prompts) grouped into named sets, loaded from
// lesson YAML files or managed programmatically through a [Store].
package content

// Item is a single drillable vocabulary entry. Word is the answer the
// learner must produce; Prompt is what the engine shows or asks.
type Item struct {
	// ID uniquely identifies the item across all sets. Mastery records are
	// keyed by this ID, so it must be stable across application runs.
	ID string `yaml:"id"`

	// Word is the target answer, e.g. the foreign-language vocable.
	Word string `yaml:"word"`

	// Prompt is the cue shown to the learner, e.g. the native-language
	// translation or a definition.
	Prompt string `yaml:"prompt"`

	// Hint is optional extra context shown on request.
	Hint string `yaml:"hint,omitempty"`

	// Tags are free-form labels for filtering and grouping.
	Tags []string `yaml:"tags,omitempty"`
}

// Set is a named collection of items drilled together in one session.
type Set struct {
	// ID uniquely identifies the set. Session snapshots and resume pointers
	// reference it, so it must be stable across application runs.
	ID string `yaml:"id"`

	// Name is the set's display name.
	Name string `yaml:"name"`

	// Description is a free-text summary of the set.
	Description string `yaml:"description,omitempty"`

	// Items are the set's vocabulary entries.
	Items []Item `yaml:"items"`
}
