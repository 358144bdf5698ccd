package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/lectern/internal/api"
	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/transcript"
)

var _ api.Engine = (*App)(nil)

// NewEngine builds a transcript engine with the rules, scoring and active
// profile from cfg. The matcher is used only when phonetic fallback is on.
// Extra options are applied after the config-derived ones.
func NewEngine(st transcript.Store, cfg *config.Config, m transcript.BookMatcher, opts ...transcript.Option) (*transcript.Engine, error) {
	engineOpts := []transcript.Option{
		transcript.WithSettings(cfg.Rules.Settings()),
		transcript.WithScoring(cfg.Rules.Scoring()),
	}
	if cfg.Rules.PhoneticFallback && m != nil {
		engineOpts = append(engineOpts, transcript.WithBookMatcher(m))
	}
	e := transcript.New(st, append(engineOpts, opts...)...)
	if id := cfg.Rules.ActiveProfile; id != "" {
		p, ok := cfg.FindProfile(id)
		if !ok {
			return nil, fmt.Errorf("app: active profile %q: %w", id, api.ErrUnknownProfile)
		}
		e.SetProfile(p.Profile())
	}
	return e, nil
}

// Process runs one fragment on the engine loop. An emitted item is added to
// the queue before Process returns.
func (a *App) Process(ctx context.Context, text string, sttConfidence float64) (transcript.Result, error) {
	return call(ctx, a, func(e *transcript.Engine) (transcript.Result, error) {
		ctx, end := observe.FragmentSpan(ctx, sttConfidence)
		start := time.Now()
		res, err := e.Process(ctx, text, sttConfidence)
		elapsed := time.Since(start)
		switch {
		case err != nil:
			end("", err)
			a.metrics.RecordEngineError(ctx)
			observe.Logger(ctx).Error("transcript processing failed", "err", err)
			return res, err
		case res.Item != nil:
			end(observe.OutcomeEmitted, nil)
			item := a.queue.Add(*res.Item)
			res.Item = &item
			a.metrics.RecordFragment(ctx, observe.OutcomeEmitted, elapsed)
			a.metrics.RecordQueueItem(ctx, string(item.Action), string(item.IntentType))
		default:
			end(string(res.Dropped), nil)
			a.metrics.RecordFragment(ctx, string(res.Dropped), elapsed)
		}
		return res, nil
	})
}

// Reset clears the engine's cooldowns, debounce entries and chapter context.
func (a *App) Reset(ctx context.Context) error {
	return a.do(ctx, func(e *transcript.Engine) error {
		e.Reset()
		slog.Info("engine reset")
		return nil
	})
}

// Settings returns the engine's current rules.
func (a *App) Settings(ctx context.Context) (transcript.Settings, error) {
	return call(ctx, a, func(e *transcript.Engine) (transcript.Settings, error) {
		return e.Settings(), nil
	})
}

// Configure merges o into the engine's rules and returns the result.
func (a *App) Configure(ctx context.Context, o transcript.Overrides) (transcript.Settings, error) {
	st, err := call(ctx, a, func(e *transcript.Engine) (transcript.Settings, error) {
		e.Configure(o)
		return e.Settings(), nil
	})
	if err == nil {
		slog.Info("engine settings updated",
			"translation", st.DefaultTranslation,
			"aggressiveness", st.Aggressiveness,
			"cooldown", st.Cooldown,
			"context_timeout", st.ContextTimeout,
			"debounce", st.Debounce,
		)
	}
	return st, err
}

// Profiles returns the configured profiles and the active profile ID.
func (a *App) Profiles(ctx context.Context) ([]transcript.Profile, string, error) {
	a.cfgMu.RLock()
	out := make([]transcript.Profile, 0, len(a.cfg.Profiles))
	for _, p := range a.cfg.Profiles {
		out = append(out, *p.Profile())
	}
	a.cfgMu.RUnlock()

	active, err := call(ctx, a, func(e *transcript.Engine) (string, error) {
		if p := e.Profile(); p != nil {
			return p.ID, nil
		}
		return "", nil
	})
	return out, active, err
}

// ActivateProfile activates the configured profile with the given ID, or
// deactivates the current one when id is empty. Deactivating puts the
// aggressiveness and context timeout back to their configured values.
func (a *App) ActivateProfile(ctx context.Context, id string) error {
	var p *transcript.Profile
	a.cfgMu.RLock()
	rules := a.cfg.Rules.Settings()
	if id != "" {
		pc, ok := a.cfg.FindProfile(id)
		if !ok {
			a.cfgMu.RUnlock()
			return fmt.Errorf("%w: %q", api.ErrUnknownProfile, id)
		}
		p = pc.Profile()
	}
	a.cfgMu.RUnlock()

	err := a.do(ctx, func(e *transcript.Engine) error {
		e.SetProfile(p)
		if p == nil {
			e.Configure(transcript.Overrides{
				Aggressiveness: &rules.Aggressiveness,
				ContextTimeout: &rules.ContextTimeout,
			})
		}
		return nil
	})
	if err == nil {
		slog.Info("profile activated", "profile", id)
	}
	return err
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// onConfigChange applies a reloaded config. Rules and profile changes reach
// the engine through the loop, so they take effect from the next fragment.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)

	a.cfgMu.Lock()
	a.cfg = new
	a.cfgMu.Unlock()

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(LogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "fields", d.RestartRequired)
	}
	for _, pc := range d.ProfileChanges {
		slog.Info("profile changed", "id", pc.ID, "added", pc.Added, "removed", pc.Removed)
	}
	if !d.RulesChanged && !d.ActiveProfileChanged {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()
	err := a.do(ctx, func(e *transcript.Engine) error {
		a.applyRules(e, new)
		return nil
	})
	if err != nil {
		slog.Error("config reload not applied", "err", err)
		return
	}
	slog.Info("config reloaded", "rules_changed", d.RulesChanged, "profile_changed", d.ActiveProfileChanged)
}

// applyRules resets the engine's rules to cfg and reapplies the active
// profile on top. It must run on the loop.
func (a *App) applyRules(e *transcript.Engine, cfg *config.Config) {
	st := cfg.Rules.Settings()
	e.Configure(transcript.Overrides{
		DefaultTranslation: &st.DefaultTranslation,
		Aggressiveness:     &st.Aggressiveness,
		Cooldown:           &st.Cooldown,
		ContextTimeout:     &st.ContextTimeout,
		Debounce:           &st.Debounce,
	})
	e.SetScoring(cfg.Rules.Scoring())
	if cfg.Rules.PhoneticFallback {
		e.SetBookMatcher(a.matcher)
	} else {
		e.SetBookMatcher(nil)
	}

	var p *transcript.Profile
	if pc, ok := cfg.FindProfile(cfg.Rules.ActiveProfile); ok {
		p = pc.Profile()
	}
	e.SetProfile(p)
}

// LogLevel maps a config log level to its slog level.
func LogLevel(l config.LogLevel) slog.Level {
	switch l {
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
