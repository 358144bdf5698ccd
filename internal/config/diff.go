package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without a restart are tracked; store and
// listen address changes need one.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RulesChanged is set when any engine rule differs, including the
	// phonetic fallback switch and confidence multipliers.
	RulesChanged bool

	// ActiveProfileChanged is set when rules.active_profile differs or the
	// active profile's own settings changed.
	ActiveProfileChanged bool

	ProfilesChanged bool
	ProfileChanges  []ProfileDiff

	// RestartRequired lists settings that changed but only take effect
	// after a restart.
	RestartRequired []string
}

// ProfileDiff describes what changed for a single profile.
type ProfileDiff struct {
	ID      string
	Added   bool
	Removed bool
	Changed bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) {
		d.RestartRequired = append(d.RestartRequired, "server.allowed_origins")
	}
	if old.Server.QueueLimit != new.Server.QueueLimit {
		d.RestartRequired = append(d.RestartRequired, "server.queue_limit")
	}
	if !storeEqual(old.Store, new.Store) {
		d.RestartRequired = append(d.RestartRequired, "store")
	}

	oldRules, newRules := old.Rules, new.Rules
	oldRules.ActiveProfile, newRules.ActiveProfile = "", ""
	d.RulesChanged = oldRules != newRules

	oldProfiles := make(map[string]ProfileConfig, len(old.Profiles))
	for _, p := range old.Profiles {
		oldProfiles[p.ID] = p
	}
	newProfiles := make(map[string]ProfileConfig, len(new.Profiles))
	for _, p := range new.Profiles {
		newProfiles[p.ID] = p
	}

	for _, p := range old.Profiles {
		np, ok := newProfiles[p.ID]
		switch {
		case !ok:
			d.ProfileChanges = append(d.ProfileChanges, ProfileDiff{ID: p.ID, Removed: true})
		case !profileEqual(p, np):
			d.ProfileChanges = append(d.ProfileChanges, ProfileDiff{ID: p.ID, Changed: true})
		}
	}
	for _, p := range new.Profiles {
		if _, ok := oldProfiles[p.ID]; !ok {
			d.ProfileChanges = append(d.ProfileChanges, ProfileDiff{ID: p.ID, Added: true})
		}
	}
	d.ProfilesChanged = len(d.ProfileChanges) > 0

	if old.Rules.ActiveProfile != new.Rules.ActiveProfile {
		d.ActiveProfileChanged = true
	} else if id := new.Rules.ActiveProfile; id != "" {
		d.ActiveProfileChanged = !profileEqual(oldProfiles[id], newProfiles[id])
	}

	return d
}

func storeEqual(a, b StoreConfig) bool {
	if (a.Fallback == nil) != (b.Fallback == nil) {
		return false
	}
	if a.Fallback != nil && !storeEqual(*a.Fallback, *b.Fallback) {
		return false
	}
	return a.Driver == b.Driver &&
		a.Path == b.Path &&
		a.PostgresDSN == b.PostgresDSN &&
		a.Seed == b.Seed &&
		slices.Equal(a.SeedFiles, b.SeedFiles) &&
		a.Breaker == b.Breaker &&
		a.DefaultTranslation == b.DefaultTranslation
}

func profileEqual(a, b ProfileConfig) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		slices.Equal(a.WakePhrases, b.WakePhrases) &&
		slices.Equal(a.IgnorePhrases, b.IgnorePhrases) &&
		a.Aggressiveness == b.Aggressiveness &&
		a.ContextTimeoutSeconds == b.ContextTimeoutSeconds &&
		a.VerseStyle == b.VerseStyle
}
