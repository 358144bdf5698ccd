package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/lectern/internal/api"
	"github.com/MrWong99/lectern/internal/app"
	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/intent"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/queue"
	"github.com/MrWong99/lectern/internal/transcript"
	"github.com/MrWong99/lectern/pkg/scripture"
)

// testConfig returns a config backed by a seeded sqlite file in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Store: config.StoreConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "scripture.db"),
			Seed:   true,
		},
		Profiles: []config.ProfileConfig{
			{ID: "guest", Name: "Guest", WakePhrases: []string{"look with me"}, Aggressiveness: intent.Conservative},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// startApp builds an App listening on a loopback port and runs it until the
// test ends.
func startApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	opts = append([]app.Option{app.WithListener(ln), app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return a
}

func TestNew_OpensAndSeedsStore(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig(t), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	ps, err := a.Store().SearchScripture(context.Background(), "John 3:16", 0)
	if err != nil {
		t.Fatalf("SearchScripture: %v", err)
	}
	if len(ps) != 1 || ps[0].Display != "John 3:16" {
		t.Errorf("SearchScripture = %+v, want John 3:16", ps)
	}
}

func TestNew_UnknownActiveProfile(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Rules.ActiveProfile = "ghost"
	if _, err := app.New(context.Background(), cfg, app.WithMetrics(testMetrics(t))); !errors.Is(err, api.ErrUnknownProfile) {
		t.Errorf("New err = %v, want ErrUnknownProfile", err)
	}
}

func TestProcess_EmitsToQueue(t *testing.T) {
	t.Parallel()

	a := startApp(t, testConfig(t))
	ctx := context.Background()

	res, err := a.Process(ctx, "Turn with me to John 3:16", 0.9)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Item == nil {
		t.Fatalf("expected an item, dropped=%q", res.Dropped)
	}
	if res.Item.Status != queue.StatusPending || res.Item.Action != queue.ActionQueue {
		t.Errorf("item = %+v", res.Item)
	}

	items := a.Queue().List()
	if len(items) != 1 || items[0].ID != res.Item.ID {
		t.Fatalf("queue = %+v, want the emitted item", items)
	}

	again, err := a.Process(ctx, "Turn with me to John 3:16", 0.9)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if again.Dropped != transcript.DropDebounced {
		t.Errorf("repeat dropped = %q, want %q", again.Dropped, transcript.DropDebounced)
	}
	if n := len(a.Queue().List()); n != 1 {
		t.Errorf("queue length = %d, want 1", n)
	}
}

func TestEngineCalls_NeedRun(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	a, err := app.New(context.Background(), testConfig(t), app.WithListener(ln), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := a.Settings(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Settings before Run err = %v, want deadline exceeded", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()
	stop()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := a.Settings(context.Background()); !errors.Is(err, app.ErrStopped) {
		t.Errorf("Settings after Run err = %v, want ErrStopped", err)
	}
}

func TestSettingsAndProfiles(t *testing.T) {
	t.Parallel()

	a := startApp(t, testConfig(t))
	ctx := context.Background()

	responsive := intent.Responsive
	st, err := a.Configure(ctx, transcript.Overrides{Aggressiveness: &responsive})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if st.Aggressiveness != intent.Responsive || st.Cooldown != transcript.DefaultCooldown {
		t.Errorf("Configure = %+v", st)
	}

	if err := a.ActivateProfile(ctx, "ghost"); !errors.Is(err, api.ErrUnknownProfile) {
		t.Errorf("ActivateProfile(ghost) = %v, want ErrUnknownProfile", err)
	}
	if err := a.ActivateProfile(ctx, "guest"); err != nil {
		t.Fatalf("ActivateProfile(guest): %v", err)
	}
	profiles, active, err := a.Profiles(ctx)
	if err != nil {
		t.Fatalf("Profiles: %v", err)
	}
	if len(profiles) != 1 || active != "guest" {
		t.Errorf("Profiles = %+v active=%q", profiles, active)
	}
	if st, _ := a.Settings(ctx); st.Aggressiveness != intent.Conservative {
		t.Errorf("aggressiveness after profile = %q, want conservative", st.Aggressiveness)
	}

	if err := a.ActivateProfile(ctx, ""); err != nil {
		t.Fatalf("ActivateProfile(\"\"): %v", err)
	}
	if _, active, _ := a.Profiles(ctx); active != "" {
		t.Errorf("active = %q after clearing", active)
	}
	if st, _ := a.Settings(ctx); st.Aggressiveness != intent.Balanced {
		t.Errorf("aggressiveness after clearing = %q, want configured balanced", st.Aggressiveness)
	}
}

func TestHandler_ClearingProfileRestoresRules(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Rules.ContextTimeoutSeconds = 30
	cfg.Profiles[0].ContextTimeoutSeconds = 45
	a := startApp(t, cfg)
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	type settings struct {
		Aggressiveness        intent.Aggressiveness `json:"aggressiveness"`
		ContextTimeoutSeconds float64               `json:"context_timeout_seconds"`
	}
	activate := func(id string) {
		t.Helper()
		req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/engine/profile", bytes.NewReader([]byte(`{"id":"`+id+`"}`)))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT profile %q: %v", id, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("PUT profile %q status = %d, want 204", id, resp.StatusCode)
		}
	}
	current := func() settings {
		t.Helper()
		resp, err := http.Get(srv.URL + "/api/engine/settings")
		if err != nil {
			t.Fatalf("GET settings: %v", err)
		}
		defer resp.Body.Close()
		var st settings
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			t.Fatalf("decode settings: %v", err)
		}
		return st
	}

	activate("guest")
	if got := current(); got != (settings{intent.Conservative, 45}) {
		t.Fatalf("with profile = %+v, want conservative/45", got)
	}
	activate("")
	if got := current(); got != (settings{intent.Balanced, 30}) {
		t.Errorf("after clearing = %+v, want configured balanced/30", got)
	}
}

func TestConfigReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "lectern.yaml")
	dbPath := filepath.Join(dir, "scripture.db")
	write := func(body string, mtime time.Time) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if err := os.Chtimes(path, mtime, mtime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	base := time.Now().Add(-time.Hour)
	write("server:\n  log_level: info\nstore:\n  path: "+dbPath+"\n  seed: true\n", base)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	level := new(slog.LevelVar)
	a := startApp(t, cfg, app.WithLogLevel(level), app.WithConfigWatch(path, 10*time.Millisecond))

	write("server:\n  log_level: debug\nstore:\n  path: "+dbPath+"\n  seed: true\nrules:\n  aggressiveness: responsive\n  cooldown_seconds: 5\n", base.Add(time.Minute))

	deadline := time.Now().Add(3 * time.Second)
	for {
		st, err := a.Settings(context.Background())
		if err != nil {
			t.Fatalf("Settings: %v", err)
		}
		if st.Aggressiveness == intent.Responsive && st.Cooldown == 5*time.Second {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("reload not applied, settings = %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", level.Level())
	}
}

func TestHandler_TranscriptToQueue(t *testing.T) {
	t.Parallel()

	a := startApp(t, testConfig(t))
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	body, _ := json.Marshal(map[string]any{"text": "turn to romans 8:28", "confidence": 0.95, "is_final": true})
	resp, err := http.Post(srv.URL+"/api/transcripts", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/transcripts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var item queue.Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if item.Display != "Romans 8:28" {
		t.Errorf("display = %q, want Romans 8:28", item.Display)
	}

	ready, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz: %v", err)
	}
	ready.Body.Close()
	if ready.StatusCode != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", ready.StatusCode)
	}
}

// plainStore is a store that cannot import seed data.
type plainStore struct{ scripture.Store }

func TestSeed_RequiresImporter(t *testing.T) {
	t.Parallel()

	err := app.Seed(context.Background(), plainStore{}, config.StoreConfig{Driver: config.DriverPostgres, Seed: true})
	if err == nil {
		t.Fatal("expected error seeding a store without Import")
	}
	if err := app.Seed(context.Background(), plainStore{}, config.StoreConfig{}); err != nil {
		t.Errorf("Seed with nothing to import: %v", err)
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := app.LogLevel(tc.in); got != tc.want {
			t.Errorf("LogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
