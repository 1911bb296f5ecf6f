// Package app assembles the lexidrill application: it builds the content and
// score stores from configuration, imports lesson files, wires the speech
// verification pipeline, and runs interactive drill sessions.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lexidrill/lexidrill/internal/config"
	"github.com/lexidrill/lexidrill/internal/content"
	"github.com/lexidrill/lexidrill/internal/drill"
	"github.com/lexidrill/lexidrill/internal/health"
	"github.com/lexidrill/lexidrill/internal/observe"
	"github.com/lexidrill/lexidrill/internal/store"
	"github.com/lexidrill/lexidrill/internal/store/postgres"
	"github.com/lexidrill/lexidrill/internal/verify"
	"github.com/lexidrill/lexidrill/pkg/audio"
	"github.com/lexidrill/lexidrill/pkg/recognizer"
)

// Providers bundles the pluggable backends built from configuration.
type Providers struct {
	// Recognizer is the speech recognition backend. Nil disables spoken mode.
	Recognizer recognizer.Provider

	// Device is the audio capture source. Nil disables spoken mode.
	Device audio.Device
}

// App holds all long-lived application state.
type App struct {
	cfg *config.Config
	log *slog.Logger

	content   *content.MemStore
	scores    store.ScoreStore
	resume    store.ResumeStore
	snapshots store.SnapshotStore

	// pg is non-nil when storage.postgres_dsn is configured; the three store
	// interfaces above then point at it.
	pg *postgres.Store

	providers Providers
	verifier  *verify.Verifier
	metrics   *observe.Metrics

	// in and out carry the interactive dialogue. Defaults: stdin, stdout.
	in  io.Reader
	out io.Writer
}

// Option configures an [App].
type Option func(*App)

// WithDialogue redirects the interactive prompt I/O. Used in tests.
func WithDialogue(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
	}
}

// New builds the application from cfg and providers: it connects the score
// store (PostgreSQL when configured, in-memory otherwise), imports all
// configured lesson files, and prepares the spoken-answer verifier when both
// an audio device and a recognizer backend are available.
func New(ctx context.Context, cfg *config.Config, providers Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		log:       slog.Default(),
		content:   content.NewMemStore(),
		providers: providers,
		metrics:   observe.DefaultMetrics(),
		in:        os.Stdin,
		out:       os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}

	// Stores.
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pg, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("app: connect storage: %w", err)
		}
		a.pg = pg
		a.scores = pg.Scores()
		a.resume = pg.Resume()
		a.snapshots = pg.Snapshots()
		a.log.Info("using postgres storage")
	} else {
		mem := store.NewMemStore()
		a.scores = mem.Scores()
		a.resume = mem.Resume()
		a.snapshots = mem.Snapshots()
		a.log.Info("using in-memory storage; progress is lost on exit")
	}

	// Lessons.
	for _, path := range cfg.Lessons {
		lesson, err := content.LoadLessonFile(path)
		if err != nil {
			a.closePartial()
			return nil, fmt.Errorf("app: %w", err)
		}
		n, err := content.ImportLesson(ctx, a.content, lesson)
		if err != nil {
			a.closePartial()
			return nil, fmt.Errorf("app: import %q: %w", path, err)
		}
		a.log.Info("lesson imported", "path", path, "name", lesson.Lesson.Name, "sets", n)
	}

	// Spoken verification needs both a capture device and a recognizer.
	if providers.Device != nil && providers.Recognizer != nil {
		a.verifier = verify.New(providers.Device, providers.Recognizer, nil,
			verify.WithStreamConfig(audio.StreamConfig{
				SampleRate: cfg.Audio.SampleRate,
				Channels:   cfg.Audio.Channels,
			}),
			verify.WithCaptureConfig(audio.CaptureConfig{
				MaxLifetime: time.Duration(cfg.Audio.MaxLifetimeSeconds) * time.Second,
			}),
			verify.WithOnPartial(func(text string) {
				fmt.Fprintf(a.out, "  (hearing: %s)\n", text)
			}),
			verify.WithMetrics(a.metrics),
		)
	}

	return a, nil
}

// Content returns the content store with all imported lessons.
func (a *App) Content() *content.MemStore { return a.content }

// Checkers returns the readiness checks for the health endpoint.
func (a *App) Checkers() []health.Checker {
	var checks []health.Checker
	if a.pg != nil {
		checks = append(checks, health.Checker{Name: "database", Check: a.pg.Ping})
	}
	return checks
}

// NewSession creates a drill session over the shared stores. The caller runs
// it via [App.Run] or drives it directly.
func (a *App) NewSession() (*drill.Session, error) {
	cfg := drill.Config{
		Content:     a.content,
		Scores:      a.scores,
		Resume:      a.resume,
		Snapshots:   a.snapshots,
		SpokenDelay: time.Duration(a.cfg.Drill.SpokenDelayMs) * time.Millisecond,
		Metrics:     a.metrics,
		Logger:      a.log,
	}
	if a.verifier != nil {
		cfg.Verifier = a.verifier
	}
	return drill.NewSession(cfg)
}

// ResumeTarget returns the suspended session pointer, if one exists.
func (a *App) ResumeTarget(ctx context.Context) (store.ResumePointer, bool, error) {
	return a.resume.Load(ctx)
}

// closePartial releases resources acquired before a constructor failure.
func (a *App) closePartial() {
	if a.pg != nil {
		a.pg.Close()
	}
}

// Shutdown releases all application resources.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if closer, ok := a.providers.Recognizer.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close recognizer: %w", err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	return errors.Join(errs...)
}
