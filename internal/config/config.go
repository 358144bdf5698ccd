// Package config provides the configuration schema, loader, hot-reload
// watcher and store registry for the lectern server.
package config

import (
	"time"

	"github.com/MrWong99/lectern/internal/intent"
	"github.com/MrWong99/lectern/internal/transcript"
)

// LogLevel controls log verbosity for the lectern server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreDriver selects the passage store backend.
type StoreDriver string

const (
	// DriverSQLite stores scripture in a local file. It is the default.
	DriverSQLite StoreDriver = "sqlite"

	// DriverPostgres stores scripture in a PostgreSQL database.
	DriverPostgres StoreDriver = "postgres"
)

// IsValid reports whether d is a recognised driver.
func (d StoreDriver) IsValid() bool {
	return d == DriverSQLite || d == DriverPostgres
}

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr = ":8080"
	DefaultStorePath  = "data/scripture.db"
	DefaultQueueLimit = 200
)

// Config is the root configuration structure for lectern.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Store    StoreConfig     `yaml:"store"`
	Rules    RulesConfig     `yaml:"rules"`
	Profiles []ProfileConfig `yaml:"profiles"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists CORS origins for the operator UI. Empty allows
	// any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// QueueLimit caps the number of items kept in the display queue.
	QueueLimit int `yaml:"queue_limit"`
}

// StoreConfig selects and configures the passage store.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// PostgresDSN is required when Driver is postgres.
	PostgresDSN string `yaml:"postgres_dsn"`

	// Seed imports the embedded KJV sample when it is not yet present.
	Seed bool `yaml:"seed"`

	// SeedFiles are additional YAML translation files imported at startup.
	SeedFiles []string `yaml:"seed_files"`

	// Breaker tunes the circuit breakers in front of the primary and the
	// fallback. It has no effect without a fallback.
	Breaker BreakerConfig `yaml:"breaker"`

	// Fallback is a replica read while the primary is failing. It is seeded
	// with the primary's seed settings, in the same order, so IDs agree.
	Fallback *StoreConfig `yaml:"fallback"`

	// DefaultTranslation is copied from rules.default_translation by
	// ApplyDefaults. Searches that parse as a reference are looked up in it.
	DefaultTranslation string `yaml:"-"`
}

// BreakerConfig holds circuit breaker thresholds. Zero values use the
// breaker defaults.
type BreakerConfig struct {
	MaxFailures  int     `yaml:"max_failures"`
	ResetSeconds float64 `yaml:"reset_seconds"`
}

// ResetTimeout returns ResetSeconds as a duration.
func (b BreakerConfig) ResetTimeout() time.Duration { return seconds(b.ResetSeconds) }

// RulesConfig tunes the transcript engine. Zero values mean "use the
// built-in default".
type RulesConfig struct {
	DefaultTranslation    string                `yaml:"default_translation"`
	Aggressiveness        intent.Aggressiveness `yaml:"aggressiveness"`
	CooldownSeconds       float64               `yaml:"cooldown_seconds"`
	ContextTimeoutSeconds float64               `yaml:"context_timeout_seconds"`
	DebounceMS            int                   `yaml:"debounce_ms"`

	// ActiveProfile is the ID of the profile applied at startup.
	ActiveProfile string `yaml:"active_profile"`

	// PhoneticFallback enables sound-alike recovery of misheard book names.
	PhoneticFallback bool `yaml:"phonetic_fallback"`

	Confidence ConfidenceConfig `yaml:"confidence"`
}

// ConfidenceConfig overrides the engine's confidence multipliers.
type ConfidenceConfig struct {
	VerseBoost     float64 `yaml:"verse_boost"`
	ContextPenalty float64 `yaml:"context_penalty"`
}

// ProfileConfig is one speaker profile.
type ProfileConfig struct {
	ID                    string                `yaml:"id"`
	Name                  string                `yaml:"name"`
	WakePhrases           []string              `yaml:"wake_phrases"`
	IgnorePhrases         []string              `yaml:"ignore_phrases"`
	Aggressiveness        intent.Aggressiveness `yaml:"aggressiveness"`
	ContextTimeoutSeconds float64               `yaml:"context_timeout_seconds"`
	VerseStyle            transcript.VerseStyle `yaml:"verse_style"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.QueueLimit == 0 {
		c.Server.QueueLimit = DefaultQueueLimit
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if fb := c.Store.Fallback; fb != nil && fb.Driver == "" {
		fb.Driver = DriverSQLite
	}
	c.Store.DefaultTranslation = c.Rules.DefaultTranslation
}

// Settings converts the rules into engine settings, falling back to the
// engine defaults for unset fields.
func (r RulesConfig) Settings() transcript.Settings {
	s := transcript.DefaultSettings()
	if r.DefaultTranslation != "" {
		s.DefaultTranslation = r.DefaultTranslation
	}
	if r.Aggressiveness != "" {
		s.Aggressiveness = r.Aggressiveness
	}
	if r.CooldownSeconds > 0 {
		s.Cooldown = seconds(r.CooldownSeconds)
	}
	if r.ContextTimeoutSeconds > 0 {
		s.ContextTimeout = seconds(r.ContextTimeoutSeconds)
	}
	if r.DebounceMS > 0 {
		s.Debounce = time.Duration(r.DebounceMS) * time.Millisecond
	}
	return s
}

// Scoring converts the confidence overrides into engine scoring.
func (r RulesConfig) Scoring() transcript.Scoring {
	s := transcript.DefaultScoring()
	if r.Confidence.VerseBoost > 0 {
		s.VerseBoost = r.Confidence.VerseBoost
	}
	if r.Confidence.ContextPenalty > 0 {
		s.ContextPenalty = r.Confidence.ContextPenalty
	}
	return s
}

// Profile converts p into an engine profile.
func (p ProfileConfig) Profile() *transcript.Profile {
	return &transcript.Profile{
		ID:             p.ID,
		Name:           p.Name,
		WakePhrases:    p.WakePhrases,
		IgnorePhrases:  p.IgnorePhrases,
		Aggressiveness: p.Aggressiveness,
		ContextTimeout: seconds(p.ContextTimeoutSeconds),
		VerseStyle:     p.VerseStyle,
	}
}

// FindProfile returns the profile with the given ID.
func (c *Config) FindProfile(id string) (ProfileConfig, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return ProfileConfig{}, false
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
