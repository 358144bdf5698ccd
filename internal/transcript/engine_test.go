package transcript_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lectern/internal/intent"
	"github.com/MrWong99/lectern/internal/queue"
	"github.com/MrWong99/lectern/internal/transcript"
	"github.com/MrWong99/lectern/internal/transcript/phonetic"
	"github.com/MrWong99/lectern/pkg/scripture"
	"github.com/MrWong99/lectern/pkg/scripture/seed"
	"github.com/MrWong99/lectern/pkg/scripture/sqlite"
)

// fakeClock is a manually advanced time source.
type fakeClock struct{ t time.Time }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 4, 5, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "scripture.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	kjv, err := seed.Default()
	if err != nil {
		t.Fatalf("seed.Default: %v", err)
	}
	if _, err := store.Import(ctx, kjv); err != nil {
		t.Fatalf("Import: %v", err)
	}
	return store
}

func newEngine(t *testing.T, opts ...transcript.Option) (*transcript.Engine, *fakeClock) {
	t.Helper()
	clock := newClock()
	opts = append([]transcript.Option{transcript.WithClock(clock.Now)}, opts...)
	return transcript.New(newStore(t), opts...), clock
}

func process(t *testing.T, e *transcript.Engine, text string, conf float64) transcript.Result {
	t.Helper()
	res, err := e.Process(context.Background(), text, conf)
	if err != nil {
		t.Fatalf("Process(%q): %v", text, err)
	}
	if (res.Item == nil) == (res.Dropped == "") {
		t.Fatalf("Process(%q): Item=%v Dropped=%q, want exactly one set", text, res.Item, res.Dropped)
	}
	return res
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestProcess_ExplicitScenario(t *testing.T) {
	t.Parallel()

	e, clock := newEngine(t, transcript.WithIDGenerator(func() string { return "item-1" }))
	res := process(t, e, "Turn with me to John 3:16", 1.0)

	if res.Item == nil {
		t.Fatalf("dropped: %s", res.Dropped)
	}
	if res.Intent.Type != intent.ExplicitDisplay {
		t.Errorf("Intent=%q, want explicit_display", res.Intent.Type)
	}
	want := scripture.Reference{Book: "john", Chapter: 3, VerseStart: 16, Translation: "KJV"}
	if res.Item.Reference != want {
		t.Errorf("Reference=%+v, want %+v", res.Item.Reference, want)
	}
	if !strings.HasPrefix(res.Item.Text, "For God so loved the world") {
		t.Errorf("Text=%q", res.Item.Text)
	}

	item := res.Item
	if item.ID != "item-1" || item.Display != "John 3:16" {
		t.Errorf("ID=%q Display=%q, want item-1 / John 3:16", item.ID, item.Display)
	}
	if item.Action != queue.ActionQueue || item.Status != queue.StatusPending || item.Source != queue.SourceVoice {
		t.Errorf("Action=%q Status=%q Source=%q", item.Action, item.Status, item.Source)
	}
	if !approx(item.Confidence, 0.99) {
		t.Errorf("Confidence=%v, want 0.99", item.Confidence)
	}
	if !item.CreatedAt.Equal(clock.Now()) || item.IntentType != intent.ExplicitDisplay {
		t.Errorf("CreatedAt=%v IntentType=%q", item.CreatedAt, item.IntentType)
	}
}

func TestProcess_Rhetorical(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)
	res := process(t, e, "he basically said it's like being lost, similar to the prodigal son", 1.0)

	if res.Dropped != transcript.DropNoIntent {
		t.Errorf("Dropped=%q, want no_intent", res.Dropped)
	}
	if res.Intent.Type != intent.RhetoricalThematic {
		t.Errorf("Intent=%q, want rhetorical_thematic", res.Intent.Type)
	}
}

func TestProcess_Debounce(t *testing.T) {
	t.Parallel()

	e, clock := newEngine(t)
	const text = "turn to romans 8:28"

	if res := process(t, e, text, 1.0); res.Item == nil {
		t.Fatalf("first fragment dropped: %s", res.Dropped)
	}
	clock.Advance(time.Second)
	if res := process(t, e, "  TURN to Romans 8:28 ", 1.0); res.Dropped != transcript.DropDebounced {
		t.Errorf("repeat within debounce: Dropped=%q, want debounced", res.Dropped)
	}
	clock.Advance(1500 * time.Millisecond)
	if res := process(t, e, text, 1.0); res.Dropped != transcript.DropCooldown {
		t.Errorf("repeat after debounce: Dropped=%q, want cooldown", res.Dropped)
	}
}

func TestProcess_Cooldown(t *testing.T) {
	t.Parallel()

	e, clock := newEngine(t)

	if res := process(t, e, "turn to john 3:16", 1.0); res.Item == nil {
		t.Fatalf("first fragment dropped: %s", res.Dropped)
	}

	clock.Advance(5 * time.Second)
	res := process(t, e, "please go to john 3:16", 1.0)
	if res.Dropped != transcript.DropCooldown {
		t.Errorf("same reference within cooldown: Dropped=%q, want cooldown", res.Dropped)
	}

	if res := process(t, e, "let's read john 3:17", 1.0); res.Item == nil {
		t.Errorf("different reference dropped: %s", res.Dropped)
	}

	clock.Advance(26 * time.Second)
	if res := process(t, e, "please go to john 3:16", 1.0); res.Item == nil {
		t.Errorf("same reference after cooldown dropped: %s", res.Dropped)
	}
}

func TestProcess_CooldownSharedAcrossBookNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		first, second string
	}{
		{"alias then canonical", "turn to jn 3:16", "go to john 3:16"},
		{"canonical then alias", "turn to john 3:16", "go to jhn 3:16"},
		{"misheard book", "turn to philippians 4:13", "go to philippines 4:13"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, clock := newEngine(t)
			if res := process(t, e, tc.first, 1.0); res.Item == nil {
				t.Fatalf("first fragment dropped: %s", res.Dropped)
			}
			clock.Advance(5 * time.Second)
			if res := process(t, e, tc.second, 1.0); res.Dropped != transcript.DropCooldown {
				t.Errorf("Dropped=%q, want cooldown", res.Dropped)
			}
		})
	}
}

func TestProcess_VerseFollowUp(t *testing.T) {
	t.Parallel()

	e, clock := newEngine(t)
	if res := process(t, e, "let's read john chapter 3", 1.0); res.Item == nil {
		t.Fatalf("chapter fragment dropped: %s", res.Dropped)
	}

	clock.Advance(20 * time.Second)
	res := process(t, e, "now verse 17", 1.0)
	if res.Item == nil {
		t.Fatalf("follow-up dropped: %s (intent %+v)", res.Dropped, res.Intent)
	}
	if res.Intent.Type != intent.ImplicitDisplay {
		t.Errorf("Intent=%q, want implicit_display", res.Intent.Type)
	}
	if !res.Item.Reference.BookFromContext || res.Item.Display != "John 3:17" {
		t.Errorf("Reference=%+v Display=%q, want John 3:17 from context", res.Item.Reference, res.Item.Display)
	}
	if !approx(res.Item.Confidence, 0.6*1.1*0.9) {
		t.Errorf("Confidence=%v, want %v", res.Item.Confidence, 0.6*1.1*0.9)
	}
}

func TestProcess_VerseFollowUpNeedsContext(t *testing.T) {
	t.Parallel()

	e, clock := newEngine(t)
	if res := process(t, e, "now verse 17", 1.0); res.Dropped != transcript.DropNoIntent {
		t.Errorf("without chapter: Dropped=%q, want no_intent", res.Dropped)
	}

	if res := process(t, e, "let's read john chapter 3", 1.0); res.Item == nil {
		t.Fatalf("chapter fragment dropped: %s", res.Dropped)
	}
	clock.Advance(21 * time.Second)
	if res := process(t, e, "now verse 18", 1.0); res.Dropped != transcript.DropNoIntent {
		t.Errorf("stale chapter: Dropped=%q, want no_intent", res.Dropped)
	}
}

func TestProcess_ChapterContext(t *testing.T) {
	t.Parallel()

	e, clock := newEngine(t)

	first := process(t, e, "let's read john chapter three", 1.0)
	if first.Item == nil {
		t.Fatalf("chapter fragment dropped: %s", first.Dropped)
	}
	if first.Item.Display != "John 3" {
		t.Errorf("Display=%q, want John 3", first.Item.Display)
	}
	if ctx := e.ChapterContext(); ctx == nil || ctx.Book != "John" || ctx.Chapter != 3 {
		t.Fatalf("ChapterContext=%+v, want John 3", ctx)
	}

	clock.Advance(10 * time.Second)
	res := process(t, e, "let's read verse seventeen", 1.0)
	if res.Item == nil {
		t.Fatalf("verse-only fragment dropped: %s", res.Dropped)
	}
	if !res.Item.Reference.BookFromContext || res.Item.Display != "John 3:17" {
		t.Errorf("Reference=%+v Display=%q, want John 3:17 from context", res.Item.Reference, res.Item.Display)
	}
	if !approx(res.Item.Confidence, 0.9*1.1*0.9) {
		t.Errorf("Confidence=%v, want %v", res.Item.Confidence, 0.9*1.1*0.9)
	}
}

func TestProcess_ChapterContextExpires(t *testing.T) {
	t.Parallel()

	e, clock := newEngine(t)

	if res := process(t, e, "let's read john chapter 3", 1.0); res.Item == nil {
		t.Fatalf("chapter fragment dropped: %s", res.Dropped)
	}
	clock.Advance(25 * time.Second)
	if res := process(t, e, "let's read verse 17", 1.0); res.Dropped != transcript.DropNoReference {
		t.Errorf("stale context: Dropped=%q, want no_reference", res.Dropped)
	}
}

func TestProcess_Actions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		stt      float64
		want     queue.Action
		wantConf float64
	}{
		{"explicit high", "turn to john 3:16", 1.0, queue.ActionQueue, 0.99},
		{"implicit warning", "according to romans 8:28", 1.0, queue.ActionQueueWithWarning, 0.66},
		{"explicit suggest", "turn to john 3:16", 0.6, queue.ActionSuggest, 0.594},
		{"explicit ignore", "turn to john 3:16", 0.5, queue.ActionIgnore, 0.495},
		{"explicit chapter", "turn to psalm 23", 1.0, queue.ActionQueue, 0.9},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, _ := newEngine(t)
			res := process(t, e, tc.text, tc.stt)
			if res.Item == nil {
				t.Fatalf("dropped: %s", res.Dropped)
			}
			if res.Item.Action != tc.want {
				t.Errorf("Action=%q, want %q", res.Item.Action, tc.want)
			}
			if !approx(res.Item.Confidence, tc.wantConf) {
				t.Errorf("Confidence=%v, want %v", res.Item.Confidence, tc.wantConf)
			}
		})
	}
}

func TestProcess_Drops(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want transcript.DropReason
	}{
		{"no intent", "john 3:16", transcript.DropNoIntent},
		{"no reference", "turn to your neighbour", transcript.DropNoReference},
		{"unknown verse", "turn to john 3:99", transcript.DropNotFound},
		{"unseeded chapter", "turn to john 5", transcript.DropNotFound},
		{"verse without context", "let's read verse 4", transcript.DropNoReference},
		{"unknown book", "turn to hezekiah 4:2", transcript.DropNoReference},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, _ := newEngine(t)
			if res := process(t, e, tc.text, 1.0); res.Dropped != tc.want {
				t.Errorf("Dropped=%q, want %q", res.Dropped, tc.want)
			}
		})
	}
}

func TestProcess_DropLeavesNoState(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)
	if res := process(t, e, "turn to john 3:99", 1.0); res.Dropped != transcript.DropNotFound {
		t.Fatalf("Dropped=%q, want not_found", res.Dropped)
	}
	if res := process(t, e, "turn to john 3:99", 1.0); res.Dropped != transcript.DropNotFound {
		t.Errorf("repeat: Dropped=%q, want not_found (not debounced)", res.Dropped)
	}
	if e.ChapterContext() != nil {
		t.Error("dropped fragment set the chapter context")
	}
}

func TestProcess_STTCorrectionAlias(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)
	res := process(t, e, "please turn to philippines 4:13", 1.0)
	if res.Item == nil {
		t.Fatalf("dropped: %s", res.Dropped)
	}
	if res.Item.Display != "Philippians 4:13" || res.Item.Reference.Book != "philippines" {
		t.Errorf("Display=%q Book=%q", res.Item.Display, res.Item.Reference.Book)
	}
}

func TestProcess_PhoneticFallback(t *testing.T) {
	t.Parallel()

	const text = "turn to mathew 11:28"

	plain, _ := newEngine(t)
	if res := process(t, plain, text, 1.0); res.Dropped != transcript.DropNoReference {
		t.Errorf("without matcher: Dropped=%q, want no_reference", res.Dropped)
	}

	e, _ := newEngine(t, transcript.WithBookMatcher(phonetic.New()))
	res := process(t, e, text, 1.0)
	if res.Item == nil {
		t.Fatalf("with matcher: dropped %s", res.Dropped)
	}
	if res.Item.Display != "Matthew 11:28" || res.Item.Reference.Book != "Matthew" {
		t.Errorf("Display=%q Book=%q, want Matthew 11:28", res.Item.Display, res.Item.Reference.Book)
	}
}

func TestEngine_Reset(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)
	const text = "turn to john 3:16"

	if res := process(t, e, text, 1.0); res.Item == nil {
		t.Fatalf("dropped: %s", res.Dropped)
	}
	e.Reset()
	if e.ChapterContext() != nil {
		t.Error("ChapterContext survived Reset")
	}
	if res := process(t, e, text, 1.0); res.Item == nil {
		t.Errorf("after Reset: dropped %s", res.Dropped)
	}
}

func TestEngine_Configure(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)
	zero := time.Duration(0)
	translation := "kjv"
	e.Configure(transcript.Overrides{Cooldown: &zero, Debounce: &zero, DefaultTranslation: &translation})

	s := e.Settings()
	if s.Cooldown != 0 || s.Debounce != 0 || s.DefaultTranslation != "kjv" {
		t.Errorf("Settings=%+v", s)
	}
	if s.ContextTimeout != transcript.DefaultContextTimeout || s.Aggressiveness != intent.Balanced {
		t.Errorf("unset fields changed: %+v", s)
	}

	for i := range 2 {
		if res := process(t, e, "turn to john 3:16", 1.0); res.Item == nil {
			t.Errorf("fragment %d dropped with zero windows: %s", i, res.Dropped)
		}
	}
}

func TestEngine_SetProfile(t *testing.T) {
	t.Parallel()

	e, _ := newEngine(t)
	e.SetProfile(&transcript.Profile{
		ID:             "guest",
		WakePhrases:    []string{"look with me"},
		Aggressiveness: intent.Conservative,
		ContextTimeout: 5 * time.Second,
	})

	s := e.Settings()
	if s.Aggressiveness != intent.Conservative || s.ContextTimeout != 5*time.Second {
		t.Errorf("Settings=%+v, want conservative / 5s", s)
	}

	res := process(t, e, "look with me at romans 8:28", 1.0)
	if res.Item == nil {
		t.Fatalf("wake phrase fragment dropped: %s", res.Dropped)
	}
	if res.Intent.Type != intent.ExplicitDisplay || !approx(res.Intent.Confidence, 0.94) {
		t.Errorf("Intent=%+v, want explicit 0.94", res.Intent)
	}

	e.SetProfile(nil)
	if e.Profile() != nil {
		t.Error("Profile() not cleared")
	}
	if s := e.Settings(); s.Aggressiveness != intent.Conservative {
		t.Errorf("clearing the profile changed Aggressiveness to %q", s.Aggressiveness)
	}
}

func TestEngine_VerseStyle(t *testing.T) {
	t.Parallel()

	numeric, _ := newEngine(t)
	numeric.SetProfile(&transcript.Profile{ID: "n", VerseStyle: transcript.VerseStyleNumeric})
	if res := process(t, numeric, "turn to john three", 1.0); res.Dropped != transcript.DropNoReference {
		t.Errorf("numeric style: Dropped=%q, want no_reference", res.Dropped)
	}

	spoken, _ := newEngine(t)
	spoken.SetProfile(&transcript.Profile{ID: "s", VerseStyle: transcript.VerseStyleSpoken})
	if res := process(t, spoken, "turn to john three", 1.0); res.Item == nil {
		t.Errorf("spoken style: dropped %s", res.Dropped)
	}
}

// failingStore passes lookups through but fails passage reads.
type failingStore struct {
	transcript.Store
	err error
}

func (f failingStore) GetPassage(context.Context, scripture.Reference) (scripture.Passage, error) {
	return scripture.Passage{}, f.err
}

func TestProcess_StoreFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk on fire")
	e := transcript.New(failingStore{Store: newStore(t), err: boom})

	res, err := e.Process(context.Background(), "turn to john 3:16", 1.0)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want wrapped %v", err, boom)
	}
	if res.Item != nil {
		t.Error("item emitted despite store failure")
	}
}
