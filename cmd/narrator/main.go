// Command narrator is the main entry point for the narrator text-to-speech
// web service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/MrWong99/narrator/internal/app"
	"github.com/MrWong99/narrator/internal/config"
	"github.com/MrWong99/narrator/pkg/provider/tts"
	"github.com/MrWong99/narrator/pkg/provider/tts/coqui"
	"github.com/MrWong99/narrator/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/narrator/pkg/provider/tts/gemini"
	"github.com/MrWong99/narrator/pkg/provider/tts/openai"
	"github.com/MrWong99/narrator/pkg/store"
	"github.com/MrWong99/narrator/pkg/store/memory"
	"github.com/MrWong99/narrator/pkg/store/postgres"
	"github.com/MrWong99/narrator/pkg/store/redis"
	"github.com/MrWong99/narrator/pkg/store/sqlite"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	watch := flag.Bool("watch", true, "reload the log level when the config file changes")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "narrator: %v\n", err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "narrator: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "narrator: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("narrator starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Registry ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	registerBuiltinStores(reg)

	provider, err := reg.CreateProvider(ctx, cfg.Provider)
	if err != nil {
		var ce *tts.ConfigurationError
		if errors.As(err, &ce) {
			slog.Error("provider is not configured", "provider", ce.Provider, "setting", ce.Setting, "reason", ce.Reason)
		} else {
			slog.Error("failed to create provider", "name", cfg.Provider.Name, "err", err)
		}
		return 1
	}
	slog.Info("provider created", "name", provider.Name(), "model", cfg.Provider.Model)

	records, err := reg.CreateStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open record store", "backend", cfg.Store.Backend, "err", err)
		return 1
	}
	slog.Info("record store opened", "backend", cfg.Store.Backend)

	// ── Config watcher ────────────────────────────────────────────────────────
	opts := []app.Option{app.WithVersion(version)}
	if *watch {
		w, err := config.NewWatcher(*configPath, func(_, _ *config.Config, diff config.ConfigDiff) {
			if diff.LogLevelChanged {
				level.Set(slogLevel(diff.NewLogLevel))
				slog.Info("log level changed", "level", diff.NewLogLevel)
			}
			if len(diff.RestartRequired) > 0 {
				slog.Warn("config changes need a restart to take effect", "sections", diff.RestartRequired)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			opts = append(opts, app.WithWatcher(w))
		}
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, app.Components{Provider: provider, Store: records}, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down", "addr", application.Addr().String())

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		_ = application.Shutdown(context.Background())
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the speech backends that ship with narrator.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterProvider("gemini", func(ctx context.Context, entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []gemini.Option
		if entry.Model != "" {
			opts = append(opts, gemini.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry, "timeout"); d > 0 {
			opts = append(opts, gemini.WithTimeout(d))
		}
		return gemini.New(ctx, entry.APIKey, opts...)
	})

	reg.RegisterProvider("openai", func(_ context.Context, entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []openai.Option
		if entry.Model != "" {
			opts = append(opts, openai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if f := entry.Option("response_format"); f != "" {
			opts = append(opts, openai.WithResponseFormat(f))
		}
		return openai.New(entry.APIKey, opts...)
	})

	reg.RegisterProvider("elevenlabs", func(_ context.Context, entry config.ProviderEntry) (tts.Synthesizer, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if f := entry.Option("output_format"); f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		if v := entry.Option("default_voice"); v != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(v))
		}
		if d := optDuration(entry, "timeout"); d > 0 {
			opts = append(opts, elevenlabs.WithTimeout(d))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// Coqui is self-hosted: base_url is required, api_key is unused.
	reg.RegisterProvider("coqui", func(_ context.Context, entry config.ProviderEntry) (tts.Synthesizer, error) {
		opts := []coqui.Option{
			coqui.WithAPIMode(coqui.APIMode(entry.Option("api_mode"))),
			coqui.WithSpeaker(entry.Option("speaker")),
		}
		if v := entry.Option("sample_rate"); v != "" {
			rate, err := strconv.Atoi(v)
			if err != nil {
				return nil, &tts.ConfigurationError{Provider: "coqui", Setting: "sample_rate", Reason: err.Error()}
			}
			opts = append(opts, coqui.WithSampleRate(rate))
		}
		if d := optDuration(entry, "timeout"); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, name := range reg.Providers() {
		slog.Debug("registered provider", "name", name)
	}
}

// ── Store wiring ──────────────────────────────────────────────────────────────

func registerBuiltinStores(reg *config.Registry) {
	reg.RegisterStore(config.StoreMemory, func(context.Context, config.StoreConfig) (store.Store, error) {
		return memory.New(), nil
	})
	reg.RegisterStore(config.StorePostgres, func(ctx context.Context, c config.StoreConfig) (store.Store, error) {
		return postgres.New(ctx, c.DSN)
	})
	reg.RegisterStore(config.StoreSQLite, func(ctx context.Context, c config.StoreConfig) (store.Store, error) {
		return sqlite.Open(ctx, c.DSN)
	})
	reg.RegisterStore(config.StoreRedis, func(ctx context.Context, c config.StoreConfig) (store.Store, error) {
		return redis.New(ctx, redis.Config{URL: c.DSN, TTL: c.TTL})
	})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optDuration reads a duration option given either as a Go duration string
// ("45s") or as a number of seconds.
func optDuration(entry config.ProviderEntry, key string) time.Duration {
	v := entry.Option(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	slog.Warn("ignoring unparseable provider option", "key", key, "value", v)
	return 0
}
