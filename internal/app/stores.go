package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/resilience"
	"github.com/MrWong99/lectern/pkg/scripture"
	"github.com/MrWong99/lectern/pkg/scripture/postgres"
	"github.com/MrWong99/lectern/pkg/scripture/seed"
	"github.com/MrWong99/lectern/pkg/scripture/sqlite"
)

// RegisterBuiltinStores wires the store drivers that ship with lectern into
// reg.
func RegisterBuiltinStores(reg *config.Registry) {
	reg.RegisterStore(config.DriverSQLite, func(ctx context.Context, cfg config.StoreConfig) (scripture.Store, error) {
		return sqlite.Open(ctx, cfg.Path, sqlite.WithDefaultTranslation(cfg.DefaultTranslation))
	})
	reg.RegisterStore(config.DriverPostgres, func(ctx context.Context, cfg config.StoreConfig) (scripture.Store, error) {
		return postgres.NewStore(ctx, cfg.PostgresDSN, postgres.WithDefaultTranslation(cfg.DefaultTranslation))
	})
	slog.Debug("registered store drivers", "drivers", reg.Drivers())
}

// OpenStore opens the configured store through reg and seeds it. A nil reg
// means the built-in drivers. With a fallback configured both stores are
// opened, seeded and put behind circuit breakers, primary first.
func OpenStore(ctx context.Context, reg *config.Registry, cfg config.StoreConfig) (scripture.Store, error) {
	return openStore(ctx, reg, cfg, nil)
}

// breakerFunc observes store circuit breaker transitions.
type breakerFunc func(store string, from, to resilience.State)

func openStore(ctx context.Context, reg *config.Registry, cfg config.StoreConfig, onChange breakerFunc) (scripture.Store, error) {
	if reg == nil {
		reg = config.NewRegistry()
		RegisterBuiltinStores(reg)
	}
	primary, err := openSeeded(ctx, reg, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Fallback == nil {
		return primary, nil
	}

	fb := *cfg.Fallback
	fb.Seed, fb.SeedFiles = cfg.Seed, cfg.SeedFiles
	fb.DefaultTranslation = cfg.DefaultTranslation
	replica, err := openSeeded(ctx, reg, fb)
	if err != nil {
		primary.Close()
		return nil, fmt.Errorf("fallback: %w", err)
	}

	st := resilience.NewFailoverStore(primary, string(cfg.Driver), resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Breaker.MaxFailures,
		ResetTimeout: cfg.Breaker.ResetTimeout(),
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("store breaker changed state", "store", name, "from", from, "to", to)
			if onChange != nil {
				onChange(name, from, to)
			}
		},
	})
	st.AddReplica("fallback-"+string(fb.Driver), replica)
	slog.Info("store failover enabled", "primary", cfg.Driver, "fallback", fb.Driver)
	return st, nil
}

func openSeeded(ctx context.Context, reg *config.Registry, cfg config.StoreConfig) (scripture.Store, error) {
	st, err := reg.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Seed(ctx, st, cfg); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// Seed imports the embedded sample translation when cfg.Seed is set and
// every file in cfg.SeedFiles. Translations already present are skipped.
func Seed(ctx context.Context, st scripture.Store, cfg config.StoreConfig) error {
	var translations []*seed.Translation
	if cfg.Seed {
		t, err := seed.Default()
		if err != nil {
			return fmt.Errorf("app: load embedded seed: %w", err)
		}
		translations = append(translations, t)
	}
	if len(cfg.SeedFiles) > 0 {
		ts, err := seed.LoadFiles(ctx, cfg.SeedFiles)
		if err != nil {
			return fmt.Errorf("app: load seed files: %w", err)
		}
		translations = append(translations, ts...)
	}
	if len(translations) == 0 {
		return nil
	}

	imp, ok := st.(seed.Importer)
	if !ok {
		return fmt.Errorf("app: %s store cannot be seeded", cfg.Driver)
	}
	written, err := seed.Apply(ctx, imp, translations...)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if len(written) > 0 {
		slog.Info("seeded translations", "codes", written)
	}
	return nil
}
