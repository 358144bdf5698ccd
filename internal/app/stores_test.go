package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/lectern/internal/app"
	"github.com/MrWong99/lectern/internal/config"
	"github.com/MrWong99/lectern/internal/resilience"
	"github.com/MrWong99/lectern/pkg/scripture"
	"github.com/MrWong99/lectern/pkg/scripture/sqlite"
)

var errDown = errors.New("database unreachable")

// downStore is a seedable sqlite store whose passage lookups always fail.
type downStore struct{ *sqlite.Store }

func (downStore) GetPassage(context.Context, scripture.Reference) (scripture.Passage, error) {
	return scripture.Passage{}, errDown
}

// flakyRegistry serves "postgres" from a failing sqlite file so failover
// can be exercised without a database server.
func flakyRegistry(t *testing.T) *config.Registry {
	t.Helper()
	reg := config.NewRegistry()
	app.RegisterBuiltinStores(reg)
	reg.RegisterStore(config.DriverPostgres, func(ctx context.Context, _ config.StoreConfig) (scripture.Store, error) {
		st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "primary.db"))
		if err != nil {
			return nil, err
		}
		return downStore{st}, nil
	})
	return reg
}

func TestOpenStore_FailsOverToReplica(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := config.StoreConfig{
		Driver:      config.DriverPostgres,
		PostgresDSN: "postgres://unused",
		Seed:        true,
		Breaker:     config.BreakerConfig{MaxFailures: 2, ResetSeconds: 3600},
		Fallback: &config.StoreConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "replica.db"),
		},
	}
	st, err := app.OpenStore(ctx, flakyRegistry(t), cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()

	fs, ok := st.(*resilience.FailoverStore)
	if !ok {
		t.Fatalf("OpenStore returned %T, want *resilience.FailoverStore", st)
	}

	ref := scripture.Reference{Book: "John", Chapter: 3, VerseStart: 16, Translation: "KJV"}
	for range 3 {
		p, err := st.GetPassage(ctx, ref)
		if err != nil {
			t.Fatalf("GetPassage: %v", err)
		}
		if p.Display != "John 3:16" {
			t.Fatalf("Display = %q, want John 3:16", p.Display)
		}
	}
	states := fs.States()
	if states["postgres"] != resilience.StateOpen {
		t.Errorf("primary breaker = %v, want open", states["postgres"])
	}
	if states["fallback-sqlite"] != resilience.StateClosed {
		t.Errorf("replica breaker = %v, want closed", states["fallback-sqlite"])
	}

	// The open primary is skipped; the replica was seeded with the same data.
	ts, err := st.ListTranslations(ctx)
	if err != nil || len(ts) != 1 {
		t.Fatalf("ListTranslations = %v, %v", ts, err)
	}
}

func TestOpenStore_MissIsNotFailover(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cfg := config.StoreConfig{
		Driver:   config.DriverSQLite,
		Path:     filepath.Join(t.TempDir(), "primary.db"),
		Seed:     true,
		Breaker:  config.BreakerConfig{MaxFailures: 1},
		Fallback: &config.StoreConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "replica.db"),
		},
	}
	st, err := app.OpenStore(ctx, nil, cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()

	_, err = st.GetPassage(ctx, scripture.Reference{Book: "Hezekiah", Chapter: 1, Translation: "KJV"})
	if !errors.Is(err, scripture.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := st.(*resilience.FailoverStore).States()["sqlite"]; got != resilience.StateClosed {
		t.Errorf("primary breaker = %v, want closed after a miss", got)
	}
}

func TestOpenStore_WithoutFallbackIsUnwrapped(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	st, err := app.OpenStore(context.Background(), nil, cfg.Store)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()
	if _, ok := st.(*resilience.FailoverStore); ok {
		t.Error("store without fallback should not be wrapped")
	}
}

const webSeed = `code: WEB
name: World English Bible
language: en
books:
  - name: John
    abbreviation: John
    testament: NT
    position: 43
verses:
  - {book: John, chapter: 3, verse: 16, text: "For God so loved the world, that he gave his one and only Son."}
`

func TestSeed_ThroughFailoverReachesEveryBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dir := t.TempDir()
	seedFile := filepath.Join(dir, "web.yaml")
	if err := os.WriteFile(seedFile, []byte(webSeed), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	replicaPath := filepath.Join(dir, "replica.db")
	cfg := config.StoreConfig{
		Driver:   config.DriverSQLite,
		Path:     filepath.Join(dir, "primary.db"),
		Seed:     true,
		Fallback: &config.StoreConfig{Driver: config.DriverSQLite, Path: replicaPath},
	}
	st, err := app.OpenStore(ctx, nil, cfg)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer st.Close()

	if err := app.Seed(ctx, st, config.StoreConfig{Driver: cfg.Driver, SeedFiles: []string{seedFile}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	primaryWEB, err := st.TranslationByCode(ctx, "WEB")
	if err != nil {
		t.Fatalf("primary TranslationByCode: %v", err)
	}
	replica, err := sqlite.Open(ctx, replicaPath)
	if err != nil {
		t.Fatalf("open replica: %v", err)
	}
	defer replica.Close()
	replicaWEB, err := replica.TranslationByCode(ctx, "WEB")
	if err != nil {
		t.Fatalf("replica TranslationByCode: %v", err)
	}
	if primaryWEB.ID != replicaWEB.ID {
		t.Errorf("translation IDs differ: primary %d, replica %d", primaryWEB.ID, replicaWEB.ID)
	}
}
