// Package app wires all narrator subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// The speech provider and record store are built by main.go through the
// config registry and handed in as [Components]; the app owns them from then
// on and closes the store on Shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/narrator/internal/audiofile"
	"github.com/MrWong99/narrator/internal/config"
	"github.com/MrWong99/narrator/internal/health"
	"github.com/MrWong99/narrator/internal/httpapi"
	"github.com/MrWong99/narrator/internal/observe"
	"github.com/MrWong99/narrator/internal/resilience"
	"github.com/MrWong99/narrator/internal/synth"
	"github.com/MrWong99/narrator/pkg/provider/tts"
	"github.com/MrWong99/narrator/pkg/store"
)

// Components holds the externally constructed dependencies.
type Components struct {
	Provider tts.Synthesizer
	Store    store.Store
}

// App owns all subsystem lifetimes and serves the narrator HTTP API.
type App struct {
	cfg     *config.Config
	version string

	// Subsystems, initialised in New and torn down in Shutdown.
	telemetry *observe.Telemetry
	metrics   *observe.Metrics
	guard     *resilience.Guard
	records   store.Store
	files     *audiofile.Dir
	synth     *synth.Service
	handler   http.Handler
	listener  net.Listener
	server    *http.Server
	watcher   *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithVersion sets the service version reported in telemetry.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithWatcher runs w alongside the HTTP server so config edits are picked up.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithMetrics records on m instead of instruments created from the telemetry
// pipeline. Tests use it with a ManualReader.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together and binds the listen
// address. On error, everything created so far (including c.Store) is closed.
func New(ctx context.Context, cfg *config.Config, c Components, opts ...Option) (*App, error) {
	if c.Provider == nil || c.Store == nil {
		return nil, errors.New("app: provider and store are required")
	}
	a := &App{
		cfg:     cfg,
		records: c.Store,
	}
	for _, o := range opts {
		o(a)
	}
	a.closers = append(a.closers, a.records.Close)

	if err := a.init(ctx, c.Provider); err != nil {
		_ = a.runClosers(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, provider tts.Synthesizer) error {
	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 2. Provider guard ────────────────────────────────────────────────
	a.guard = resilience.NewGuard(provider, resilience.CircuitBreakerConfig{
		MaxFailures:  a.cfg.Resilience.MaxFailures,
		ResetTimeout: a.cfg.Resilience.ResetTimeout,
		HalfOpenMax:  a.cfg.Resilience.HalfOpenMax,
	})

	// ── 3. Artifact directory ────────────────────────────────────────────
	files, err := audiofile.New(a.cfg.Audio.Dir)
	if err != nil {
		return fmt.Errorf("app: init audio dir: %w", err)
	}
	a.files = files

	// ── 4. Synthesis pipeline ────────────────────────────────────────────
	a.synth = synth.New(a.guard, a.records, a.files,
		synth.WithMaxSegmentChars(a.cfg.Synthesis.MaxSegmentChars),
		synth.WithJobTimeout(a.cfg.Synthesis.JobTimeout),
		synth.WithMetrics(a.metrics),
	)

	// ── 5. HTTP routes ───────────────────────────────────────────────────
	a.initHTTP()

	// ── 6. Listener ──────────────────────────────────────────────────────
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.listener = ln
	a.closers = append(a.closers, func() error {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})

	slog.Info("application initialised",
		"provider", a.guard.Name(),
		"format", a.guard.Format().Extension(),
		"store", a.cfg.Store.Backend,
		"audio_dir", a.files.Root(),
		"addr", ln.Addr().String(),
	)
	return nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry installs the OTel providers and the /metrics handler.
func (a *App) initTelemetry(ctx context.Context) error {
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "narrator",
		ServiceVersion: a.version,
	})
	if err != nil {
		return err
	}
	a.telemetry = tel
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tel.Shutdown(ctx)
	})

	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return err
		}
		a.metrics = m
	}
	return nil
}

// initHTTP builds the route table and the middleware chain.
func (a *App) initHTTP() {
	mux := http.NewServeMux()
	httpapi.New(a.synth, a.records, a.files).Register(mux)
	health.New(
		health.PingChecker("store", a.records),
		health.BreakerChecker(a.guard.Breaker()),
		health.DirChecker("audio", a.files.Root()),
	).Register(mux)
	mux.Handle("GET /metrics", a.telemetry.Handler)

	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Generate blocks until the whole job finishes.
		WriteTimeout: a.cfg.Synthesis.JobTimeout + 30*time.Second,
		IdleTimeout:  2 * time.Minute,
	}
}

// Handler returns the fully wired HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Addr returns the bound listen address.
func (a *App) Addr() net.Addr { return a.listener.Addr() }

// Breaker exposes the provider circuit breaker.
func (a *App) Breaker() *resilience.CircuitBreaker { return a.guard.Breaker() }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled, then drains in-flight requests for
// at most the configured shutdown timeout. It returns nil after a clean stop.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http api listening", "addr", a.listener.Addr().String())
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(sctx); err != nil {
			return fmt.Errorf("app: drain http: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and closes all subsystems. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		shutdownErr = a.runClosers(ctx)
		if shutdownErr == nil {
			slog.Info("shutdown complete")
		}
	})
	return shutdownErr
}

// runClosers calls the closers in reverse registration order.
func (a *App) runClosers(ctx context.Context) error {
	for i := len(a.closers) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded", "remaining", i+1)
			return ctx.Err()
		default:
		}
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
		}
	}
	return nil
}
