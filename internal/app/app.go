// Package app wires the lectern subsystems into a running application.
//
// The App owns the full lifecycle: New opens and seeds the passage store and
// builds the engine, queue and HTTP API; Run serves until the context ends;
// Shutdown releases the store.
//
// The transcript engine is not safe for concurrent use, so every engine call
// goes through a single loop goroutine started by Run. HTTP handlers and
// config reloads hand closures to that loop and wait for the result, which
// keeps fragments in arrival order and applies rule changes between
// fragments, never during one.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/lectern/internal/api"
	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/health"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/queue"
	"github.com/MrWong99/lectern/internal/resilience"
	"github.com/MrWong99/lectern/internal/transcript"
	"github.com/MrWong99/lectern/internal/transcript/phonetic"
	"github.com/MrWong99/lectern/pkg/scripture"
)

// ErrStopped is returned by engine calls made after Run has returned.
var ErrStopped = errors.New("app: engine loop stopped")

// reloadTimeout bounds how long a config reload waits for the engine loop.
const reloadTimeout = 5 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfgMu sync.RWMutex
	cfg   *config.Config

	registry *config.Registry
	store    scripture.Store
	queue    *queue.Queue
	metrics  *observe.Metrics
	scrape   http.Handler
	level    *slog.LevelVar
	matcher  *phonetic.Matcher

	// engine is touched only by the loop goroutine.
	engine     *transcript.Engine
	engineOpts []transcript.Option

	requests chan func()
	loopDone chan struct{}

	configPath    string
	watchInterval time.Duration
	listener      net.Listener
	server        *http.Server

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a passage store instead of opening one from config.
// The caller keeps ownership; Shutdown does not close it.
func WithStore(s scripture.Store) Option {
	return func(a *App) { a.store = s }
}

// WithRegistry replaces the built-in store driver registry.
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics instead of the default
// Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLogLevel lets config reloads change the level of the process logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithConfigWatch reloads the config file at path while running.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchInterval = interval
	}
}

// WithListener serves the API on l instead of listening on
// server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithEngineOptions passes extra options to the transcript engine, after the
// ones derived from config.
func WithEngineOptions(opts ...transcript.Option) Option {
	return func(a *App) { a.engineOpts = append(a.engineOpts, opts...) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. It opens and seeds the passage store unless
// one was injected, builds the engine with the configured rules and active
// profile, and prepares the HTTP server.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		requests: make(chan func()),
		loopDone: make(chan struct{}),
		matcher:  phonetic.New(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Passage store ────────────────────────────────────────────────
	if a.store == nil {
		st, err := openStore(ctx, a.registry, cfg.Store, func(name string, _, to resilience.State) {
			a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
		})
		if err != nil {
			return nil, fmt.Errorf("app: open store: %w", err)
		}
		a.closers = append(a.closers, st.Close)
		a.store = st
	}
	a.store = observe.InstrumentStore(a.store, a.metrics)

	// ── 2. Queue ────────────────────────────────────────────────────────
	a.queue = queue.New(cfg.Server.QueueLimit)

	// ── 3. Engine ───────────────────────────────────────────────────────
	e, err := NewEngine(a.store, cfg, a.matcher, a.engineOpts...)
	if err != nil {
		return nil, err
	}
	a.engine = e

	// ── 4. HTTP API ─────────────────────────────────────────────────────
	checks := health.New(
		health.Ping("store", a.store),
		health.Checker{Name: "engine", Check: a.pingEngine},
	)
	apiOpts := []api.Option{
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		api.WithMetrics(a.metrics),
		api.WithHealth(checks),
	}
	if a.scrape != nil {
		apiOpts = append(apiOpts, api.WithMetricsHandler(a.scrape))
	}
	srv := api.New(a.store, a, a.queue, apiOpts...)
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("app initialised",
		"store", cfg.Store.Driver,
		"translation", cfg.Rules.DefaultTranslation,
		"aggressiveness", cfg.Rules.Aggressiveness,
		"profile", cfg.Rules.ActiveProfile,
		"phonetic_fallback", cfg.Rules.PhoneticFallback,
	)
	return a, nil
}

// Queue returns the display queue.
func (a *App) Queue() *queue.Queue { return a.queue }

// Store returns the instrumented passage store.
func (a *App) Store() scripture.Store { return a.store }

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler { return a.server.Handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the engine loop, the HTTP server and, when configured, the
// config watcher. It blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.loop(ctx)
		return nil
	})

	g.Go(func() error {
		ln := a.listener
		if ln == nil {
			var err error
			if ln, err = net.Listen("tcp", a.server.Addr); err != nil {
				return fmt.Errorf("app: listen: %w", err)
			}
		}
		slog.Info("http api listening", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.onConfigChange, config.WithInterval(a.watchInterval))
		if err != nil {
			slog.Warn("config watcher disabled", "path", a.configPath, "err", err)
		} else {
			g.Go(func() error { return w.Run(ctx) })
			g.Go(func() error {
				reloadOnHangup(ctx, w)
				return nil
			})
		}
	}

	return g.Wait()
}

// reloadOnHangup re-reads the config file on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, w *config.Watcher) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if changed, err := w.Reload(); err != nil {
				slog.Warn("config reload on SIGHUP failed", "err", err)
			} else if !changed {
				slog.Info("config unchanged on SIGHUP")
			}
		}
	}
}

// loop runs engine closures one at a time until ctx ends.
func (a *App) loop(ctx context.Context) {
	defer close(a.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-a.requests:
			fn()
		}
	}
}

// call runs fn on the engine loop and waits for its result. Results travel
// over a buffered channel, so a caller that gives up early never races with
// a closure that is still running.
func call[T any](ctx context.Context, a *App, fn func(e *transcript.Engine) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	done := make(chan result, 1)
	req := func() {
		v, err := fn(a.engine)
		done <- result{v, err}
	}
	select {
	case a.requests <- req:
	case <-a.loopDone:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// do is call for closures without a result.
func (a *App) do(ctx context.Context, fn func(e *transcript.Engine) error) error {
	_, err := call(ctx, a, func(e *transcript.Engine) (struct{}, error) {
		return struct{}{}, fn(e)
	})
	return err
}

func (a *App) pingEngine(ctx context.Context) error {
	return a.do(ctx, func(*transcript.Engine) error { return nil })
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases owned resources in order. It respects the context
// deadline: if ctx expires before all closers finish, the remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
