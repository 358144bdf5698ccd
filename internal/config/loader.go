package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotEnv loads environment variables from the given .env files, or from
// ./.env when none are given. Missing files are ignored; variables already set
// in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("config: loaded env file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references
// from the environment, applies defaults and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return decode(raw)
}

func decode(raw []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.QueueLimit < 0 {
		errs = append(errs, fmt.Errorf("server.queue_limit %d must not be negative", cfg.Server.QueueLimit))
	}

	// Store
	if cfg.Store.Driver != "" && !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: sqlite, postgres", cfg.Store.Driver))
	}
	if cfg.Store.Driver == DriverPostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.driver is postgres"))
	}
	if cfg.Store.Driver == DriverPostgres && cfg.Store.Path != "" {
		slog.Warn("store.path is ignored when store.driver is postgres", "path", cfg.Store.Path)
	}
	if cfg.Store.Breaker.MaxFailures < 0 || cfg.Store.Breaker.ResetSeconds < 0 {
		errs = append(errs, errors.New("store.breaker values must not be negative"))
	}
	if fb := cfg.Store.Fallback; fb != nil {
		switch {
		case !fb.Driver.IsValid():
			errs = append(errs, fmt.Errorf("store.fallback.driver %q is invalid; valid values: sqlite, postgres", fb.Driver))
		case fb.Driver == DriverSQLite && fb.Path == "":
			errs = append(errs, errors.New("store.fallback.path is required when store.fallback.driver is sqlite"))
		case fb.Driver == DriverPostgres && fb.PostgresDSN == "":
			errs = append(errs, errors.New("store.fallback.postgres_dsn is required when store.fallback.driver is postgres"))
		}
		if fb.Fallback != nil {
			errs = append(errs, errors.New("store.fallback must not have its own fallback"))
		}
	}

	// Rules
	rules := cfg.Rules
	if rules.Aggressiveness != "" && !rules.Aggressiveness.IsValid() {
		errs = append(errs, fmt.Errorf("rules.aggressiveness %q is invalid; valid values: conservative, balanced, responsive", rules.Aggressiveness))
	}
	if rules.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("rules.cooldown_seconds %v must not be negative", rules.CooldownSeconds))
	}
	if rules.ContextTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("rules.context_timeout_seconds %v must not be negative", rules.ContextTimeoutSeconds))
	}
	if rules.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("rules.debounce_ms %d must not be negative", rules.DebounceMS))
	}
	if rules.Confidence.VerseBoost < 0 || rules.Confidence.ContextPenalty < 0 {
		errs = append(errs, errors.New("rules.confidence multipliers must not be negative"))
	}
	if rules.Confidence.VerseBoost != 0 && rules.Confidence.VerseBoost < 1 {
		errs = append(errs, fmt.Errorf("rules.confidence.verse_boost %v must be at least 1", rules.Confidence.VerseBoost))
	}
	if rules.Confidence.ContextPenalty > 1 {
		errs = append(errs, fmt.Errorf("rules.confidence.context_penalty %v must be at most 1", rules.Confidence.ContextPenalty))
	}

	// Profiles
	seen := make(map[string]int, len(cfg.Profiles))
	for i, p := range cfg.Profiles {
		prefix := fmt.Sprintf("profiles[%d]", i)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := seen[p.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of profiles[%d]", prefix, p.ID, prev))
			}
			seen[p.ID] = i
		}
		if p.Aggressiveness != "" && !p.Aggressiveness.IsValid() {
			errs = append(errs, fmt.Errorf("%s.aggressiveness %q is invalid; valid values: conservative, balanced, responsive", prefix, p.Aggressiveness))
		}
		if p.ContextTimeoutSeconds < 0 {
			errs = append(errs, fmt.Errorf("%s.context_timeout_seconds %v must not be negative", prefix, p.ContextTimeoutSeconds))
		}
		if !p.VerseStyle.IsValid() {
			errs = append(errs, fmt.Errorf("%s.verse_style %q is invalid; valid values: spoken, numeric", prefix, p.VerseStyle))
		}
	}
	if rules.ActiveProfile != "" {
		if _, ok := seen[rules.ActiveProfile]; !ok {
			errs = append(errs, fmt.Errorf("rules.active_profile %q does not match any profile id", rules.ActiveProfile))
		}
	}

	return errors.Join(errs...)
}
