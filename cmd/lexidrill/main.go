// Command lexidrill is the interactive vocabulary drill.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexidrill/lexidrill/internal/app"
	"github.com/lexidrill/lexidrill/internal/config"
	"github.com/lexidrill/lexidrill/internal/health"
	"github.com/lexidrill/lexidrill/internal/observe"
	"github.com/lexidrill/lexidrill/internal/resilience"
	"github.com/lexidrill/lexidrill/internal/store"
	"github.com/lexidrill/lexidrill/pkg/audio/pcmin"
	"github.com/lexidrill/lexidrill/pkg/recognizer"
	"github.com/lexidrill/lexidrill/pkg/recognizer/vosk"
	"github.com/lexidrill/lexidrill/pkg/recognizer/whisper"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	setID := flag.String("set", "", "ID of the set to drill (default: resume the suspended session)")
	modeFlag := flag.String("mode", "typed", "drill mode: typed, choice, or spoken")
	list := flag.Bool("list", false, "list available sets and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lexidrill: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lexidrill: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel))

	slog.Info("lexidrill starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics pipeline ──────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "lexidrill"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Recognizer registry ───────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	// Log level changes apply immediately; drill tunables on the next session.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.DrillChanged {
			slog.Info("drill settings changed, applied to the next session")
		}
	})
	if err != nil {
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	if *list {
		return listSets(ctx, application)
	}

	// ── Health & metrics sidecar ──────────────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		go func() {
			h := health.New(application.Checkers()...)
			if err := health.Serve(ctx, cfg.Server.MetricsAddr, h); err != nil {
				slog.Error("health server error", "err", err)
			}
		}()
		slog.Info("metrics endpoint listening", "addr", cfg.Server.MetricsAddr)
	}

	// ── Session target ────────────────────────────────────────────────────────
	set, mode, err := sessionTarget(ctx, application, *setID, *modeFlag)
	if err != nil {
		slog.Error("cannot determine what to drill", "err", err)
		return 1
	}

	printStartupSummary(cfg, set, mode)

	if err := application.Run(ctx, set, mode); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("session error", "err", err)
		return 1
	}
	return 0
}

// ── Recognizer wiring ─────────────────────────────────────────────────────────

// registerBuiltinBackends wires the recognizer factories that ship with
// lexidrill into reg.
func registerBuiltinBackends(reg *config.Registry) {
	reg.RegisterRecognizer("vosk", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		return vosk.New(entry.BaseURL)
	})

	reg.RegisterRecognizer("whisper-native", func(entry config.ProviderEntry) (recognizer.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	for _, name := range reg.RecognizerNames() {
		slog.Debug("registered recognizer backend", "name", name)
	}
}

// buildProviders instantiates the configured recognizer backend and audio
// source. Either may be absent; spoken mode then degrades to typed input.
func buildProviders(cfg *config.Config, reg *config.Registry) (app.Providers, error) {
	var ps app.Providers

	if name := cfg.Recognizer.Name; name != "" {
		p, err := reg.CreateRecognizer(cfg.Recognizer)
		if errors.Is(err, config.ErrNotRegistered) {
			slog.Warn("recognizer backend not registered — spoken mode disabled", "name", name)
		} else if err != nil {
			return ps, fmt.Errorf("create recognizer %q: %w", name, err)
		} else {
			ps.Recognizer = withFallbacks(p, cfg, reg)
			slog.Info("recognizer backend created", "name", name)
		}
	}

	if src := cfg.Audio.Source; src != "" {
		dev, err := pcmin.NewDevice(src)
		if err != nil {
			return ps, fmt.Errorf("audio source %q: %w", src, err)
		}
		ps.Device = dev
		slog.Info("audio source configured", "source", src)
	}

	return ps, nil
}

// withFallbacks wraps primary in a failover chain when fallback backends are
// configured. Fallbacks that cannot be built are skipped with a warning.
func withFallbacks(primary recognizer.Provider, cfg *config.Config, reg *config.Registry) recognizer.Provider {
	if len(cfg.RecognizerFallbacks) == 0 {
		return primary
	}
	chain := resilience.NewRecognizer(primary, cfg.Recognizer.Name, resilience.CircuitBreakerConfig{})
	for _, entry := range cfg.RecognizerFallbacks {
		p, err := reg.CreateRecognizer(entry)
		if err != nil {
			slog.Warn("skipping fallback recognizer", "name", entry.Name, "err", err)
			continue
		}
		chain.AddFallback(entry.Name, p)
		slog.Info("fallback recognizer registered", "name", entry.Name)
	}
	return chain
}

// ── Session target ────────────────────────────────────────────────────────────

// sessionTarget resolves which set and mode to drill: explicit flags win,
// otherwise a suspended session's resume pointer is followed.
func sessionTarget(ctx context.Context, a *app.App, setID, modeFlag string) (string, store.Mode, error) {
	mode := store.Mode(modeFlag)
	if !mode.IsValid() {
		return "", "", fmt.Errorf("invalid mode %q; valid modes: typed, choice, spoken", modeFlag)
	}

	if setID != "" {
		return setID, mode, nil
	}

	ptr, ok, err := a.ResumeTarget(ctx)
	if err != nil {
		return "", "", fmt.Errorf("load resume pointer: %w", err)
	}
	if ok {
		slog.Info("resuming suspended session", "set", ptr.SetID, "mode", ptr.Mode, "saved_at", ptr.SavedAt)
		return ptr.SetID, ptr.Mode, nil
	}

	return "", "", errors.New("no -set given and no suspended session to resume; use -list to see available sets")
}

func listSets(ctx context.Context, a *app.App) int {
	sets, err := a.Content().ListSets(ctx)
	if err != nil {
		slog.Error("failed to list sets", "err", err)
		return 1
	}
	if len(sets) == 0 {
		fmt.Println("no sets available — add lesson files to the config")
		return 0
	}
	for _, s := range sets {
		fmt.Printf("%-20s %s (%d words)\n", s.ID, s.Name, len(s.Items))
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, set string, mode store.Mode) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        lexidrill — session setup      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Set", set)
	printRow("Mode", string(mode))
	printRow("Recognizer", cfg.Recognizer.Name)
	printRow("Audio source", cfg.Audio.Source)
	if cfg.Storage.PostgresDSN != "" {
		printRow("Storage", "postgres")
	} else {
		printRow("Storage", "in-memory")
	}
	printRow("Lessons", fmt.Sprintf("%d file(s)", len(cfg.Lessons)))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-14s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a backend Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
