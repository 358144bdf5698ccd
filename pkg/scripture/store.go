package scripture

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a translation, book or passage does not
// exist. It is an expected outcome, not a fault: callers that receive it
// should treat the lookup as a miss.
var ErrNotFound = errors.New("scripture: not found")

// Store is the passage store: translations, books, book aliases and verses
// plus a full-text index over verse text.
//
// Any other error returned by a Store method means the backing store is
// unavailable or corrupt and should be surfaced as a hard failure.
//
// Implementations must be safe for concurrent reads.
type Store interface {
	// ListTranslations returns all translations ordered by ID.
	ListTranslations(ctx context.Context) ([]Translation, error)

	// TranslationByCode returns the translation with the given code,
	// matched case-insensitively.
	// Returns [ErrNotFound] if no such translation exists.
	TranslationByCode(ctx context.Context, code string) (Translation, error)

	// ListBooks returns the books of a translation ordered by position.
	ListBooks(ctx context.Context, translationID int64) ([]Book, error)

	// ResolveBookName matches name case-insensitively against canonical book
	// names first, then against the alias table. There is no edit-distance
	// matching.
	// Returns [ErrNotFound] if neither matches.
	ResolveBookName(ctx context.Context, name string, translationID int64) (Book, error)

	// GetPassage resolves ref to its verses. With both verse bounds set the
	// inclusive range is returned in ascending order; with only a start verse
	// that verse alone; with neither, the whole chapter.
	// Returns [ErrNotFound] for an unknown translation or book, or when no
	// verses match.
	GetPassage(ctx context.Context, ref Reference) (Passage, error)

	// SearchScripture interprets query as a reference first and falls back
	// to a relevance-ranked phrase search over verse text. A blank query
	// returns an empty result without touching the store. limit <= 0 means
	// [DefaultSearchLimit].
	SearchScripture(ctx context.Context, query string, limit int) ([]Passage, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}

// BookResolver is the subset of [Store] the reference extractor needs.
type BookResolver interface {
	TranslationByCode(ctx context.Context, code string) (Translation, error)
	ResolveBookName(ctx context.Context, name string, translationID int64) (Book, error)
}

// PassageGetter is the subset of [Store] used by [Search].
type PassageGetter interface {
	GetPassage(ctx context.Context, ref Reference) (Passage, error)
}

// Searcher runs a phrase search over verse text. It is the store-specific
// half of [Search].
type Searcher interface {
	// SearchText returns at most limit single-verse hits for query treated
	// as one phrase, best match first. query is already trimmed.
	SearchText(ctx context.Context, query string, limit int) ([]Passage, error)
}

// Search implements the shared part of [Store.SearchScripture]: blank
// queries yield nothing, a query that parses and resolves as a reference in
// translation yields that single passage, anything else goes to
// s.SearchText. An empty translation means [DefaultTranslation].
func Search(ctx context.Context, st PassageGetter, s Searcher, query, translation string, limit int) ([]Passage, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []Passage{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if ref, ok := ParseReference(q, translation); ok {
		p, err := st.GetPassage(ctx, ref)
		switch {
		case err == nil:
			return []Passage{p}, nil
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	return s.SearchText(ctx, q, limit)
}

// QuotePhrase wraps q in double quotes for an FTS phrase query, doubling any
// embedded quotes.
func QuotePhrase(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}
