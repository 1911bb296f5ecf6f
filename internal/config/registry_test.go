package config_test

import (
	"errors"
	"testing"

	"github.com/lexidrill/lexidrill/internal/config"
	"github.com/lexidrill/lexidrill/pkg/recognizer"
	recognizermock "github.com/lexidrill/lexidrill/pkg/recognizer/mock"
)

func TestRegistry_CreateRecognizer(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var seen config.ProviderEntry
	reg.RegisterRecognizer("fake", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		seen = entry
		return &recognizermock.Provider{}, nil
	})

	p, err := reg.CreateRecognizer(config.ProviderEntry{Name: "fake", Model: "tiny"})
	if err != nil {
		t.Fatalf("CreateRecognizer: %v", err)
	}
	if p == nil {
		t.Fatal("CreateRecognizer returned nil provider")
	}
	if seen.Model != "tiny" {
		t.Errorf("factory received entry %+v, want Model=tiny", seen)
	}
}

func TestRegistry_UnregisteredName(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	_, err := reg.CreateRecognizer(config.ProviderEntry{Name: "ghost"})
	if !errors.Is(err, config.ErrNotRegistered) {
		t.Fatalf("err = %v, want ErrNotRegistered", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterRecognizer("vosk", func(config.ProviderEntry) (recognizer.Provider, error) { return nil, nil })
	reg.RegisterRecognizer("whisper-native", func(config.ProviderEntry) (recognizer.Provider, error) { return nil, nil })

	names := reg.RecognizerNames()
	if len(names) != 2 || names[0] != "vosk" || names[1] != "whisper-native" {
		t.Errorf("RecognizerNames = %v, want sorted [vosk whisper-native]", names)
	}
}
