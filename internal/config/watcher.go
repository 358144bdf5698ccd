package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps a config file and its last valid content in sync. [Watcher.Run]
// polls the file's mtime, and a changed mtime triggers a read; the callback
// fires only when the content hash differs and the new file validates. An
// invalid edit is logged and the previous config stays in force, so a typo
// during a service never stops detection.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	mtime   time.Time
	hash    [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values are ignored.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the file at path. It does not poll until [Watcher.Run] is
// called. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: DefaultWatchInterval, onChange: onChange}
	for _, opt := range opts {
		opt(w)
	}
	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.mtime, w.hash = snap.cfg, snap.mtime, snap.hash
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls until ctx ends. It always returns nil so it can sit in an
// errgroup next to the server.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
				continue
			}
			w.mu.Lock()
			same := info.ModTime().Equal(w.mtime)
			w.mu.Unlock()
			if same {
				continue
			}
			if _, err := w.Reload(); err != nil {
				slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
			}
		}
	}
}

// Reload reads the file now, regardless of its mtime. It reports whether
// the content changed; onChange has run by the time it returns true. On
// error the current config is kept.
func (w *Watcher) Reload() (bool, error) {
	snap, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	w.mtime = snap.mtime
	if snap.hash == w.hash {
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.hash = snap.cfg, snap.hash
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, snap.cfg)
	}
	return true, nil
}

type snapshot struct {
	cfg   *Config
	mtime time.Time
	hash  [sha256.Size]byte
}

func (w *Watcher) read() (snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return snapshot{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return snapshot{}, err
	}
	cfg, err := decode(data)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{cfg: cfg, mtime: info.ModTime(), hash: sha256.Sum256(data)}, nil
}
