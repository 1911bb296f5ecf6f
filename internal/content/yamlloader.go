package content

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LessonFile is the top-level structure of a lesson YAML file.
//
// Example:
//
//	lesson:
//	  name: "Animals, unit 3"
//	  language: "es"
//	sets:
//	  - id: farm-animals
//	    name: "Farm animals"
//	    items:
//	      - id: es-cow
//	        word: "vaca"
//	        prompt: "cow"
type LessonFile struct {
	Lesson LessonMeta `yaml:"lesson"`
	Sets   []Set      `yaml:"sets"`
}

// LessonMeta holds top-level metadata for a lesson.
type LessonMeta struct {
	// Name is the lesson's display name.
	Name string `yaml:"name"`

	// Description is a free-text summary of the lesson.
	Description string `yaml:"description"`

	// Language is the target language identifier (e.g., "es", "ja").
	Language string `yaml:"language"`
}

// LoadLessonFile reads and parses a lesson YAML file from disk.
// Returns a descriptive error if the file cannot be opened or parsed.
func LoadLessonFile(path string) (*LessonFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("content: open lesson file %q: %w", path, err)
	}
	defer f.Close()

	lf, err := LoadLessonFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("content: parse lesson file %q: %w", path, err)
	}
	return lf, nil
}

// LoadLessonFromReader parses lesson YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadLessonFromReader(r io.Reader) (*LessonFile, error) {
	var lf LessonFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos
	if err := dec.Decode(&lf); err != nil {
		return nil, fmt.Errorf("content: decode lesson yaml: %w", err)
	}
	return &lf, nil
}

// ImportLesson imports all sets from a parsed [LessonFile] into store.
// Returns the number of sets successfully imported.
// An error from the store aborts the import and returns the count so far.
func ImportLesson(ctx context.Context, store Store, lesson *LessonFile) (int, error) {
	if lesson == nil {
		return 0, fmt.Errorf("content: lesson must not be nil")
	}
	for i, set := range lesson.Sets {
		if err := store.AddSet(ctx, set); err != nil {
			return i, fmt.Errorf("content: import lesson %q: %w", lesson.Lesson.Name, err)
		}
	}
	return len(lesson.Sets), nil
}
