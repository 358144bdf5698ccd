// Package transcript turns speech-to-text fragments into scripture queue
// items.
//
// The [Engine] is a small state machine. Each fragment is normalised,
// debounced, classified for display intent, searched for a reference,
// checked against a per-reference cooldown, resolved against the passage
// store, scored and finally emitted as a [queue.Item]. A fragment that
// fails any gate is dropped silently; [Result.Dropped] says where.
//
// Time-based state (debounce, cooldown, chapter context) expires lazily on
// the next call. There are no timers and no goroutines.
//
// An Engine is not safe for concurrent use. Fragments must reach it in
// arrival order from a single goroutine.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/lectern/internal/intent"
	"github.com/MrWong99/lectern/internal/queue"
	"github.com/MrWong99/lectern/pkg/scripture"
)

// Default timing windows.
const (
	DefaultCooldown       = 30 * time.Second
	DefaultContextTimeout = 20 * time.Second
	DefaultDebounce       = 2 * time.Second
)

// phoneticMaxWords bounds the book phrases handed to a [BookMatcher].
const phoneticMaxWords = 3

// Store is the part of the passage store the engine reads.
type Store interface {
	scripture.BookResolver
	scripture.PassageGetter
	ListBooks(ctx context.Context, translationID int64) ([]scripture.Book, error)
}

// BookMatcher recovers book names the speech recogniser misheard. It is
// consulted only after every spelled-out candidate failed to resolve.
type BookMatcher interface {
	Match(phrase string, books []string) (book string, score float64, matched bool)
}

// Settings are the engine's tunable rules.
type Settings struct {
	DefaultTranslation string
	Aggressiveness     intent.Aggressiveness
	Cooldown           time.Duration
	ContextTimeout     time.Duration
	Debounce           time.Duration
}

// DefaultSettings returns the built-in rules.
func DefaultSettings() Settings {
	return Settings{
		DefaultTranslation: scripture.DefaultTranslation,
		Aggressiveness:     intent.Balanced,
		Cooldown:           DefaultCooldown,
		ContextTimeout:     DefaultContextTimeout,
		Debounce:           DefaultDebounce,
	}
}

// Overrides is a partial [Settings] update. Nil fields are left unchanged.
type Overrides struct {
	DefaultTranslation *string
	Aggressiveness     *intent.Aggressiveness
	Cooldown           *time.Duration
	ContextTimeout     *time.Duration
	Debounce           *time.Duration
}

// Scoring holds the confidence adjustments and action thresholds.
type Scoring struct {
	// VerseBoost multiplies confidence when a verse number is present.
	VerseBoost float64

	// ContextPenalty multiplies confidence when the book came from the
	// chapter context.
	ContextPenalty float64

	ExplicitQueue  float64
	ImplicitMin    float64
	ImplicitQueue  float64
	SuggestMinimum float64
}

// DefaultScoring returns the built-in scoring.
func DefaultScoring() Scoring {
	return Scoring{
		VerseBoost:     1.1,
		ContextPenalty: 0.9,
		ExplicitQueue:  0.7,
		ImplicitMin:    0.6,
		ImplicitQueue:  0.8,
		SuggestMinimum: 0.5,
	}
}

// DropReason names the gate a fragment failed.
type DropReason string

const (
	DropDebounced   DropReason = "debounced"
	DropNoIntent    DropReason = "no_intent"
	DropNoReference DropReason = "no_reference"
	DropCooldown    DropReason = "cooldown"
	DropNotFound    DropReason = "not_found"
)

// Result describes what happened to one fragment.
type Result struct {
	// Item is the emitted queue item, or nil when the fragment was dropped.
	Item *queue.Item

	// Dropped is empty when Item is set.
	Dropped DropReason

	Normalized string
	Intent     intent.Classification

	// Reference is the extracted reference once extraction succeeded.
	Reference scripture.Reference
}

// ChapterContext is the most recently emitted book and chapter, used to
// resolve verse-only fragments such as "verse 17".
type ChapterContext struct {
	Book        string
	Chapter     int
	Translation string
	SetAt       time.Time
}

// Option configures an [Engine].
type Option func(*Engine)

// WithClassifier replaces the default intent classifier.
func WithClassifier(c *intent.Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithBookMatcher enables misheard book-name recovery.
func WithBookMatcher(m BookMatcher) Option {
	return func(e *Engine) { e.matcher = m }
}

// WithSettings replaces the default rules.
func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// WithScoring replaces the default scoring.
func WithScoring(s Scoring) Option {
	return func(e *Engine) { e.scoring = s }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator sets the queue item ID source.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithLogger sets the logger used for drop and emit records.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine is the transcript processing state machine.
type Engine struct {
	store      Store
	classifier *intent.Classifier
	matcher    BookMatcher
	now        func() time.Time
	newID      func() string
	log        *slog.Logger

	settings Settings
	scoring  Scoring
	profile  *Profile

	cooldowns map[string]time.Time
	debounce  map[string]time.Time
	chapter   *ChapterContext

	translationIDs map[string]int64
	bookNames      map[int64][]string
}

// New returns an Engine reading from store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		classifier:     intent.New(),
		now:            time.Now,
		newID:          uuid.NewString,
		log:            slog.Default(),
		settings:       DefaultSettings(),
		scoring:        DefaultScoring(),
		cooldowns:      make(map[string]time.Time),
		debounce:       make(map[string]time.Time),
		translationIDs: make(map[string]int64),
		bookNames:      make(map[int64][]string),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Settings returns the current rules.
func (e *Engine) Settings() Settings { return e.settings }

// Profile returns the active profile or nil.
func (e *Engine) Profile() *Profile { return e.profile }

// ChapterContext returns the current chapter context, or nil when none was
// set since the last [Engine.Reset].
func (e *Engine) ChapterContext() *ChapterContext {
	if e.chapter == nil {
		return nil
	}
	c := *e.chapter
	return &c
}

// Configure merges o into the current rules. It takes effect from the next
// fragment.
func (e *Engine) Configure(o Overrides) {
	if o.DefaultTranslation != nil {
		e.settings.DefaultTranslation = *o.DefaultTranslation
	}
	if o.Aggressiveness != nil {
		e.settings.Aggressiveness = *o.Aggressiveness
	}
	if o.Cooldown != nil {
		e.settings.Cooldown = *o.Cooldown
	}
	if o.ContextTimeout != nil {
		e.settings.ContextTimeout = *o.ContextTimeout
	}
	if o.Debounce != nil {
		e.settings.Debounce = *o.Debounce
	}
}

// SetProfile activates p. A non-nil profile also overwrites the current
// aggressiveness and context timeout with its own non-zero values; passing
// nil deactivates the profile's phrases and verse style but leaves those
// rules as they are.
func (e *Engine) SetProfile(p *Profile) {
	e.profile = p
	if p == nil {
		return
	}
	if p.Aggressiveness != "" {
		e.settings.Aggressiveness = p.Aggressiveness
	}
	if p.ContextTimeout > 0 {
		e.settings.ContextTimeout = p.ContextTimeout
	}
}

// SetScoring replaces the confidence multipliers and action thresholds.
func (e *Engine) SetScoring(s Scoring) { e.scoring = s }

// SetBookMatcher enables misheard book-name recovery, or disables it when m
// is nil.
func (e *Engine) SetBookMatcher(m BookMatcher) { e.matcher = m }

// Reset clears the cooldown and debounce maps and the chapter context.
func (e *Engine) Reset() {
	clear(e.cooldowns)
	clear(e.debounce)
	e.chapter = nil
}

// Process runs one fragment through the pipeline. sttConfidence is the
// recogniser's confidence in [0, 1].
//
// A dropped fragment returns a Result with a nil Item and a nil error. An
// error is returned only when the passage store fails for a reason other
// than a missing passage.
func (e *Engine) Process(ctx context.Context, text string, sttConfidence float64) (Result, error) {
	now := e.now()
	spoken := e.profile == nil || e.profile.VerseStyle != VerseStyleNumeric
	res := Result{Normalized: normalize(text, spoken)}

	key := debounceKey(res.Normalized)
	if last, ok := e.debounce[key]; ok && now.Sub(last) < e.settings.Debounce {
		return e.drop(res, DropDebounced), nil
	}

	res.Intent = e.classifier.Classify(res.Normalized, e.intentOptions(now))
	if !res.Intent.Type.Displayable() {
		return e.drop(res, DropNoIntent), nil
	}

	ref, book, ok, err := e.extract(ctx, res.Normalized, now)
	if err != nil {
		return res, err
	}
	if !ok {
		return e.drop(res, DropNoReference), nil
	}
	res.Reference = ref

	// Keyed by canonical book so "jn 3:16" and "john 3:16" share a cooldown.
	canonical := ref
	canonical.Book = book
	cooldownKey := canonical.Key()
	if last, ok := e.cooldowns[cooldownKey]; ok && now.Sub(last) < e.settings.Cooldown {
		return e.drop(res, DropCooldown), nil
	}

	passage, err := e.store.GetPassage(ctx, ref)
	if errors.Is(err, scripture.ErrNotFound) {
		return e.drop(res, DropNotFound), nil
	}
	if err != nil {
		return res, fmt.Errorf("transcript: get passage %s: %w", ref, err)
	}

	confidence := e.confidence(res.Intent.Confidence, sttConfidence, ref)
	action := e.action(res.Intent.Type, confidence)

	e.commit(now, key, cooldownKey, passage)

	res.Item = &queue.Item{
		ID:         e.newID(),
		Reference:  ref,
		Display:    passage.Display,
		Text:       passage.Text,
		Source:     queue.SourceVoice,
		Action:     action,
		Status:     queue.StatusPending,
		CreatedAt:  now,
		Confidence: confidence,
		IntentType: res.Intent.Type,
	}
	e.log.Info("transcript: emit",
		"reference", passage.Display,
		"action", action,
		"confidence", confidence,
		"intent", res.Intent.Type,
	)
	return res, nil
}

func (e *Engine) drop(res Result, reason DropReason) Result {
	res.Dropped = reason
	e.log.Debug("transcript: drop", "reason", reason, "text", res.Normalized)
	return res
}

func (e *Engine) intentOptions(now time.Time) intent.Options {
	opts := intent.Options{
		Aggressiveness: e.settings.Aggressiveness,
		FollowUp:       e.chapterLive(now),
	}
	if e.profile != nil {
		opts.WakePhrases = e.profile.WakePhrases
		opts.IgnorePhrases = e.profile.IgnorePhrases
	}
	return opts
}

// confidence combines intent and recogniser confidence and applies the verse
// boost and context penalty, clamped to [0, 1].
func (e *Engine) confidence(intentConf, sttConf float64, ref scripture.Reference) float64 {
	c := intentConf * sttConf
	if ref.HasVerse() {
		c *= e.scoring.VerseBoost
	}
	if ref.BookFromContext {
		c *= e.scoring.ContextPenalty
	}
	return math.Max(0, math.Min(1, c))
}

func (e *Engine) action(t intent.Type, confidence float64) queue.Action {
	s := e.scoring
	switch {
	case t == intent.ExplicitDisplay && confidence >= s.ExplicitQueue:
		return queue.ActionQueue
	case t == intent.ImplicitDisplay && confidence >= s.ImplicitMin:
		if confidence >= s.ImplicitQueue {
			return queue.ActionQueue
		}
		return queue.ActionQueueWithWarning
	case confidence >= s.SuggestMinimum:
		return queue.ActionSuggest
	default:
		return queue.ActionIgnore
	}
}

// commit records an emission: cooldown, chapter context and debounce, each
// followed by purging stale entries.
func (e *Engine) commit(now time.Time, debounceKey, cooldownKey string, p scripture.Passage) {
	e.cooldowns[cooldownKey] = now
	for k, t := range e.cooldowns {
		if now.Sub(t) > e.settings.Cooldown {
			delete(e.cooldowns, k)
		}
	}

	e.chapter = &ChapterContext{
		Book:        p.Reference.Book,
		Chapter:     p.Reference.Chapter,
		Translation: p.Reference.Translation,
		SetAt:       now,
	}

	e.debounce[debounceKey] = now
	for k, t := range e.debounce {
		if now.Sub(t) > 2*e.settings.Debounce {
			delete(e.debounce, k)
		}
	}
}

func (e *Engine) chapterLive(now time.Time) bool {
	return e.chapter != nil && now.Sub(e.chapter.SetAt) <= e.settings.ContextTimeout
}

// extract finds the reference in text and the canonical name of its book.
// Candidates are tried in order: the whole fragment as a reference, then
// references embedded in running speech, then (with a book matcher) the same
// candidates matched by sound, and finally a verse-only mention resolved
// against the chapter context.
func (e *Engine) extract(ctx context.Context, text string, now time.Time) (scripture.Reference, string, bool, error) {
	translation := e.settings.DefaultTranslation
	if translation == "" {
		translation = scripture.DefaultTranslation
	}

	var candidates []scripture.Reference
	if ref, ok := scripture.ParseReference(text, translation); ok {
		candidates = append(candidates, ref)
	}
	candidates = append(candidates, scripture.InlineReferences(text, translation)...)

	if len(candidates) > 0 {
		trID, ok, err := e.translationID(ctx, translation)
		if err != nil {
			return scripture.Reference{}, "", false, err
		}
		if ok {
			for _, ref := range candidates {
				spoken, book, ok, err := e.resolveBook(ctx, ref.Book, trID)
				if err != nil {
					return scripture.Reference{}, "", false, err
				}
				if ok {
					ref.Book = spoken
					return ref, book, true, nil
				}
			}
			if e.matcher != nil {
				for _, ref := range candidates {
					book, ok, err := e.matchBook(ctx, ref.Book, trID)
					if err != nil {
						return scripture.Reference{}, "", false, err
					}
					if ok {
						ref.Book = book
						return ref, book, true, nil
					}
				}
			}
		}
	}

	if !e.chapterLive(now) {
		return scripture.Reference{}, "", false, nil
	}
	start, end, ok := scripture.ParseVerseOnly(text)
	if !ok {
		return scripture.Reference{}, "", false, nil
	}
	return scripture.Reference{
		Book:            e.chapter.Book,
		Chapter:         e.chapter.Chapter,
		VerseStart:      start,
		VerseEnd:        end,
		Translation:     e.chapter.Translation,
		BookFromContext: true,
	}, e.chapter.Book, true, nil
}

// resolveBook returns the first candidate of phrase the store recognises,
// as spoken, and the canonical name it resolved to.
func (e *Engine) resolveBook(ctx context.Context, phrase string, trID int64) (string, string, bool, error) {
	for _, name := range scripture.BookCandidates(phrase) {
		book, err := e.store.ResolveBookName(ctx, name, trID)
		switch {
		case err == nil:
			return name, book.Name, true, nil
		case !errors.Is(err, scripture.ErrNotFound):
			return "", "", false, fmt.Errorf("transcript: resolve book %q: %w", name, err)
		}
	}
	return "", "", false, nil
}

// matchBook tries the short candidates of phrase against the canonical book
// names by sound and returns the canonical name.
func (e *Engine) matchBook(ctx context.Context, phrase string, trID int64) (string, bool, error) {
	names, err := e.books(ctx, trID)
	if err != nil {
		return "", false, err
	}
	for _, name := range scripture.BookCandidates(phrase) {
		if len(strings.Fields(name)) > phoneticMaxWords {
			continue
		}
		if book, score, ok := e.matcher.Match(name, names); ok {
			e.log.Debug("transcript: phonetic book match", "heard", name, "book", book, "score", score)
			return book, true, nil
		}
	}
	return "", false, nil
}

func (e *Engine) translationID(ctx context.Context, code string) (int64, bool, error) {
	key := strings.ToLower(code)
	if id, ok := e.translationIDs[key]; ok {
		return id, true, nil
	}
	tr, err := e.store.TranslationByCode(ctx, code)
	if errors.Is(err, scripture.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("transcript: translation %q: %w", code, err)
	}
	e.translationIDs[key] = tr.ID
	return tr.ID, true, nil
}

func (e *Engine) books(ctx context.Context, trID int64) ([]string, error) {
	if names, ok := e.bookNames[trID]; ok {
		return names, nil
	}
	books, err := e.store.ListBooks(ctx, trID)
	if err != nil {
		return nil, fmt.Errorf("transcript: list books: %w", err)
	}
	names := make([]string, len(books))
	for i, b := range books {
		names[i] = b.Name
	}
	e.bookNames[trID] = names
	return names, nil
}
