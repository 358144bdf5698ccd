// Command lectern is the entry point for the lectern scripture-detection
// server and its operator tools.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/MrWong99/lectern/internal/app"
	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/pkg/scripture"
)

const version = "0.1.0"

// Globals are the flags shared by every command.
type Globals struct {
	Config   string          `short:"c" default:"lectern.yaml" env:"LECTERN_CONFIG" help:"Path to the YAML configuration file" type:"path"`
	EnvFile  []string        `name:"env-file" help:"Extra .env files loaded before the config (default ./.env)" type:"path"`
	LogLevel string          `name:"log-level" help:"Override the configured log level (debug, info, warn, error)"`
	Version  kong.VersionFlag `help:"Print version information and quit"`
}

// CLI defines the command-line interface for lectern.
type CLI struct {
	Globals

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Run the HTTP API and transcript engine"`
	Search  SearchCmd  `cmd:"" help:"Search scripture by reference or text"`
	Passage PassageCmd `cmd:"" help:"Print a passage"`
	Replay  ReplayCmd  `cmd:"" help:"Feed a transcript file through the engine and print emitted items"`
	Seed    SeedCmd    `cmd:"" help:"Import translation YAML files into the passage store"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("lectern"),
		kong.Description("Real-time scripture detection for live sermons"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))

	err := kctx.Run(&cli.Globals)
	kctx.FatalIfErrorf(err)
}

// ── Shared setup ──────────────────────────────────────────────────────────────

// logLevel is shared by the process logger and config hot reload.
var logLevel = new(slog.LevelVar)

// setup loads .env files and the config, then installs the process logger.
// A missing config file falls back to the built-in defaults.
func (g *Globals) setup() (*config.Config, error) {
	if err := config.LoadDotEnv(g.EnvFile...); err != nil {
		return nil, err
	}

	cfg, err := config.Load(g.Config)
	missing := errors.Is(err, os.ErrNotExist)
	switch {
	case missing:
		cfg = &config.Config{}
		cfg.ApplyDefaults()
	case err != nil:
		return nil, err
	}

	level := cfg.Server.LogLevel
	if g.LogLevel != "" {
		level = config.LogLevel(g.LogLevel)
		if !level.IsValid() {
			return nil, fmt.Errorf("--log-level %q must be debug, info, warn or error", g.LogLevel)
		}
	}
	logLevel.Set(app.LogLevel(level))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if missing {
		slog.Info("config file not found, using defaults", "config", g.Config)
	}
	return cfg, nil
}

// openStore opens and seeds the configured store for one-shot commands.
func openStore(ctx context.Context, cfg *config.Config) (scripture.Store, error) {
	st, err := app.OpenStore(ctx, nil, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return st, nil
}

// ── serve ─────────────────────────────────────────────────────────────────────

// ServeCmd runs the server until SIGINT or SIGTERM.
type ServeCmd struct {
	WatchInterval time.Duration `name:"watch-interval" default:"2s" help:"How often the config file is checked for changes"`
	NoWatch       bool          `name:"no-watch" help:"Disable config hot reload"`
	TraceSample   float64       `name:"trace-sample" default:"1" help:"Fraction of fragment and request traces to record (0-1]"`
}

func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	slog.Info("lectern starting",
		"version", version,
		"config", g.Config,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "lectern",
		ServiceVersion: version,
		SampleRatio:    c.TraceSample,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	opts := []app.Option{
		app.WithLogLevel(logLevel),
		app.WithMetricsHandler(telemetry.Handler()),
	}
	if !c.NoWatch {
		if _, err := os.Stat(g.Config); err == nil {
			opts = append(opts, app.WithConfigWatch(g.Config, c.WatchInterval))
		}
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// ── search / passage ──────────────────────────────────────────────────────────

// SearchCmd prints matching passages, one per line.
type SearchCmd struct {
	Query []string `arg:"" help:"Reference such as \"John 3:16\" or words to search for"`
	Limit int      `short:"n" default:"10" help:"Maximum number of results"`
}

func (c *SearchCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ps, err := st.SearchScripture(ctx, joinArgs(c.Query), c.Limit)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if len(ps) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, p := range ps {
		fmt.Printf("%-22s %s\n", p.Display, p.Text)
	}
	return nil
}

// PassageCmd prints one passage verse by verse.
type PassageCmd struct {
	Ref         []string `arg:"" help:"Reference such as \"Romans 8:28-30\""`
	Translation string   `short:"t" help:"Translation code (default from config)"`
}

func (c *PassageCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	translation := c.Translation
	if translation == "" {
		translation = cfg.Rules.Settings().DefaultTranslation
	}
	ref, ok := scripture.ParseReference(joinArgs(c.Ref), translation)
	if !ok {
		return fmt.Errorf("%q is not a reference", joinArgs(c.Ref))
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := st.GetPassage(ctx, ref)
	if errors.Is(err, scripture.ErrNotFound) {
		return fmt.Errorf("%s not found in %s", ref, translation)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s)\n\n", p.Display, p.Reference.Translation)
	for _, v := range p.Verses {
		fmt.Printf("%3d  %s\n", v.Verse, v.Text)
	}
	return nil
}

// ── seed ──────────────────────────────────────────────────────────────────────

// SeedCmd imports translation files. Translations already in the store are
// skipped.
type SeedCmd struct {
	Files []string `arg:"" help:"Translation YAML files" type:"existingfile"`
}

func (c *SeedCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.setup()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return app.Seed(ctx, st, config.StoreConfig{Driver: cfg.Store.Driver, SeedFiles: c.Files})
}

func joinArgs(args []string) string { return strings.Join(args, " ") }
