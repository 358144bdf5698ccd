package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/lectern/pkg/scripture"
	"github.com/MrWong99/lectern/pkg/scripture/seed"
)

var (
	_ scripture.Store    = (*Store)(nil)
	_ scripture.Searcher = (*Store)(nil)
	_ seed.Importer      = (*Store)(nil)
)

// Store is a PostgreSQL passage store. All operations are safe for
// concurrent use.
type Store struct {
	pool        *pgxpool.Pool
	translation string
}

// Option configures a [Store].
type Option func(*Store)

// WithDefaultTranslation sets the translation that references typed into
// [Store.SearchScripture] are looked up in. Default:
// [scripture.DefaultTranslation].
func WithDefaultTranslation(code string) Option {
	return func(s *Store) { s.translation = code }
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	s := &Store{pool: pool}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping implements [scripture.Store].
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// ListTranslations implements [scripture.Store].
func (s *Store) ListTranslations(ctx context.Context) ([]scripture.Translation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code, name, language, copyright FROM translations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list translations: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanTranslation)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan translations: %w", err)
	}
	if out == nil {
		out = []scripture.Translation{}
	}
	return out, nil
}

// TranslationByCode implements [scripture.Store].
func (s *Store) TranslationByCode(ctx context.Context, code string) (scripture.Translation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code, name, language, copyright FROM translations WHERE lower(code) = lower($1)`, code)
	if err != nil {
		return scripture.Translation{}, fmt.Errorf("postgres store: translation %q: %w", code, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTranslation)
	if errors.Is(err, pgx.ErrNoRows) {
		return scripture.Translation{}, scripture.ErrNotFound
	}
	if err != nil {
		return scripture.Translation{}, fmt.Errorf("postgres store: translation %q: %w", code, err)
	}
	return t, nil
}

// ListBooks implements [scripture.Store].
func (s *Store) ListBooks(ctx context.Context, translationID int64) ([]scripture.Book, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+bookColumns+` FROM books b WHERE b.translation_id = $1 ORDER BY b.position`, translationID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list books: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanBook)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan books: %w", err)
	}
	if out == nil {
		out = []scripture.Book{}
	}
	return out, nil
}

// ResolveBookName implements [scripture.Store].
func (s *Store) ResolveBookName(ctx context.Context, name string, translationID int64) (scripture.Book, error) {
	b, err := s.firstBook(ctx,
		`SELECT `+bookColumns+` FROM books b
		  WHERE b.translation_id = $1 AND lower(b.name) = lower($2)`, translationID, name)
	if err == nil || !errors.Is(err, scripture.ErrNotFound) {
		return b, err
	}
	return s.firstBook(ctx,
		`SELECT `+bookColumns+` FROM books b
		   JOIN book_aliases ba ON ba.book_id = b.id
		  WHERE b.translation_id = $1 AND lower(ba.alias) = lower($2)
		  ORDER BY b.position
		  LIMIT 1`, translationID, name)
}

func (s *Store) firstBook(ctx context.Context, q string, args ...any) (scripture.Book, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return scripture.Book{}, fmt.Errorf("postgres store: resolve book: %w", err)
	}
	b, err := pgx.CollectExactlyOneRow(rows, scanBook)
	if errors.Is(err, pgx.ErrNoRows) {
		return scripture.Book{}, scripture.ErrNotFound
	}
	if err != nil {
		return scripture.Book{}, fmt.Errorf("postgres store: resolve book: %w", err)
	}
	return b, nil
}

// GetPassage implements [scripture.Store].
func (s *Store) GetPassage(ctx context.Context, ref scripture.Reference) (scripture.Passage, error) {
	t, err := s.TranslationByCode(ctx, ref.Translation)
	if err != nil {
		return scripture.Passage{}, err
	}
	book, err := s.ResolveBookName(ctx, ref.Book, t.ID)
	if err != nil {
		return scripture.Passage{}, err
	}

	var rows pgx.Rows
	switch {
	case ref.VerseStart != 0 && ref.VerseEnd != 0:
		rows, err = s.pool.Query(ctx,
			`SELECT id, book_id, chapter, verse, text FROM verses
			  WHERE book_id = $1 AND chapter = $2 AND verse BETWEEN $3 AND $4
			  ORDER BY verse`, book.ID, ref.Chapter, ref.VerseStart, ref.VerseEnd)
	case ref.VerseStart != 0:
		rows, err = s.pool.Query(ctx,
			`SELECT id, book_id, chapter, verse, text FROM verses
			  WHERE book_id = $1 AND chapter = $2 AND verse = $3`, book.ID, ref.Chapter, ref.VerseStart)
	default:
		rows, err = s.pool.Query(ctx,
			`SELECT id, book_id, chapter, verse, text FROM verses
			  WHERE book_id = $1 AND chapter = $2
			  ORDER BY verse`, book.ID, ref.Chapter)
	}
	if err != nil {
		return scripture.Passage{}, fmt.Errorf("postgres store: query verses: %w", err)
	}
	verses, err := pgx.CollectRows(rows, scanVerse)
	if err != nil {
		return scripture.Passage{}, fmt.Errorf("postgres store: scan verses: %w", err)
	}

	ref.Translation = t.Code
	return scripture.NewPassage(book, ref, verses)
}

// SearchScripture implements [scripture.Store].
func (s *Store) SearchScripture(ctx context.Context, query string, limit int) ([]scripture.Passage, error) {
	return scripture.Search(ctx, s, s, query, s.translation, limit)
}

// SearchText implements [scripture.Searcher]. The query is passed to
// phraseto_tsquery, so word order matters and no operator syntax is
// interpreted. Results are ordered by ts_rank.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]scripture.Passage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT v.id, v.book_id, v.chapter, v.verse, v.text, b.name, t.code
		   FROM verses v
		   JOIN books b        ON b.id = v.book_id
		   JOIN translations t ON t.id = b.translation_id,
		        phraseto_tsquery('english', $1) q
		  WHERE v.text_tsv @@ q
		  ORDER BY ts_rank(v.text_tsv, q) DESC, v.id
		  LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (scripture.Passage, error) {
		var (
			v           scripture.Verse
			bookName    string
			translation string
		)
		if err := row.Scan(&v.ID, &v.BookID, &v.Chapter, &v.Verse, &v.Text, &bookName, &translation); err != nil {
			return scripture.Passage{}, err
		}
		return scripture.VersePassage(bookName, translation, v), nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan search hits: %w", err)
	}
	if out == nil {
		out = []scripture.Passage{}
	}
	return out, nil
}

const bookColumns = `b.id, b.translation_id, b.name, b.abbreviation, b.testament, b.position`

func scanTranslation(row pgx.CollectableRow) (scripture.Translation, error) {
	var t scripture.Translation
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Language, &t.Copyright)
	return t, err
}

func scanBook(row pgx.CollectableRow) (scripture.Book, error) {
	var (
		b         scripture.Book
		testament string
	)
	if err := row.Scan(&b.ID, &b.TranslationID, &b.Name, &b.Abbreviation, &testament, &b.Position); err != nil {
		return scripture.Book{}, err
	}
	b.Testament = scripture.Testament(testament)
	return b, nil
}

func scanVerse(row pgx.CollectableRow) (scripture.Verse, error) {
	var v scripture.Verse
	err := row.Scan(&v.ID, &v.BookID, &v.Chapter, &v.Verse, &v.Text)
	return v, err
}
