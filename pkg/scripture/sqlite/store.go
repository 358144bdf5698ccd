package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/lectern/pkg/scripture"
	"github.com/MrWong99/lectern/pkg/scripture/seed"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

var (
	_ scripture.Store    = (*Store)(nil)
	_ scripture.Searcher = (*Store)(nil)
	_ seed.Importer      = (*Store)(nil)
)

// Store is a file-backed SQLite passage store. Reads are safe for concurrent
// use; [Store.Import] should not race with reads.
type Store struct {
	db          *sql.DB
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

// Open opens (creating if needed) the database file at path, enables WAL
// journaling and foreign keys, and runs [Migrate]. Parent directories are
// created.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %q: %w", path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: %w", err)
	}

	s := &Store{db: db}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database file is still usable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ListTranslations implements [scripture.Store].
func (s *Store) ListTranslations(ctx context.Context) ([]scripture.Translation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, name, language, COALESCE(copyright, '') FROM translations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list translations: %w", err)
	}
	defer rows.Close()

	out := []scripture.Translation{}
	for rows.Next() {
		var t scripture.Translation
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Language, &t.Copyright); err != nil {
			return nil, fmt.Errorf("sqlite store: scan translation: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TranslationByCode implements [scripture.Store].
func (s *Store) TranslationByCode(ctx context.Context, code string) (scripture.Translation, error) {
	var t scripture.Translation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, name, language, COALESCE(copyright, '')
		   FROM translations WHERE code = ? COLLATE NOCASE`, code).
		Scan(&t.ID, &t.Code, &t.Name, &t.Language, &t.Copyright)
	if errors.Is(err, sql.ErrNoRows) {
		return scripture.Translation{}, scripture.ErrNotFound
	}
	if err != nil {
		return scripture.Translation{}, fmt.Errorf("sqlite store: translation %q: %w", code, err)
	}
	return t, nil
}

// ListBooks implements [scripture.Store].
func (s *Store) ListBooks(ctx context.Context, translationID int64) ([]scripture.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books b WHERE b.translation_id = ? ORDER BY b.position`, translationID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: list books: %w", err)
	}
	defer rows.Close()

	out := []scripture.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: scan book: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ResolveBookName implements [scripture.Store].
func (s *Store) ResolveBookName(ctx context.Context, name string, translationID int64) (scripture.Book, error) {
	b, err := scanBook(s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books b
		  WHERE b.translation_id = ? AND b.name = ? COLLATE NOCASE`, translationID, name))
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return scripture.Book{}, fmt.Errorf("sqlite store: resolve book %q: %w", name, err)
	}

	b, err = scanBook(s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books b
		   JOIN book_aliases ba ON ba.book_id = b.id
		  WHERE b.translation_id = ? AND ba.alias = ? COLLATE NOCASE
		  ORDER BY b.position
		  LIMIT 1`, translationID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return scripture.Book{}, scripture.ErrNotFound
	}
	if err != nil {
		return scripture.Book{}, fmt.Errorf("sqlite store: resolve alias %q: %w", name, err)
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

	var rows *sql.Rows
	switch {
	case ref.VerseStart != 0 && ref.VerseEnd != 0:
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, book_id, chapter, verse, text FROM verses
			  WHERE book_id = ? AND chapter = ? AND verse >= ? AND verse <= ?
			  ORDER BY verse`, book.ID, ref.Chapter, ref.VerseStart, ref.VerseEnd)
	case ref.VerseStart != 0:
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, book_id, chapter, verse, text FROM verses
			  WHERE book_id = ? AND chapter = ? AND verse = ?`, book.ID, ref.Chapter, ref.VerseStart)
	default:
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, book_id, chapter, verse, text FROM verses
			  WHERE book_id = ? AND chapter = ?
			  ORDER BY verse`, book.ID, ref.Chapter)
	}
	if err != nil {
		return scripture.Passage{}, fmt.Errorf("sqlite store: query verses: %w", err)
	}
	defer rows.Close()

	var verses []scripture.Verse
	for rows.Next() {
		var v scripture.Verse
		if err := rows.Scan(&v.ID, &v.BookID, &v.Chapter, &v.Verse, &v.Text); err != nil {
			return scripture.Passage{}, fmt.Errorf("sqlite store: scan verse: %w", err)
		}
		verses = append(verses, v)
	}
	if err := rows.Err(); err != nil {
		return scripture.Passage{}, fmt.Errorf("sqlite store: query verses: %w", err)
	}

	ref.Translation = t.Code
	return scripture.NewPassage(book, ref, verses)
}

// SearchScripture implements [scripture.Store].
func (s *Store) SearchScripture(ctx context.Context, query string, limit int) ([]scripture.Passage, error) {
	return scripture.Search(ctx, s, s, query, s.translation, limit)
}

// SearchText implements [scripture.Searcher] with an FTS5 phrase query
// ordered by bm25 rank.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]scripture.Passage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.book_id, v.chapter, v.verse, v.text, b.name, t.code
		   FROM verses_fts
		   JOIN verses v       ON v.id = verses_fts.rowid
		   JOIN books b        ON b.id = v.book_id
		   JOIN translations t ON t.id = b.translation_id
		  WHERE verses_fts MATCH ?
		  ORDER BY rank
		  LIMIT ?`, scripture.QuotePhrase(query), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: search: %w", err)
	}
	defer rows.Close()

	out := []scripture.Passage{}
	for rows.Next() {
		var (
			v           scripture.Verse
			bookName    string
			translation string
		)
		if err := rows.Scan(&v.ID, &v.BookID, &v.Chapter, &v.Verse, &v.Text, &bookName, &translation); err != nil {
			return nil, fmt.Errorf("sqlite store: scan search hit: %w", err)
		}
		out = append(out, scripture.VersePassage(bookName, translation, v))
	}
	return out, rows.Err()
}

const bookColumns = `b.id, b.translation_id, b.name, b.abbreviation, b.testament, b.position`

type scanner interface {
	Scan(dest ...any) error
}

func scanBook(row scanner) (scripture.Book, error) {
	var b scripture.Book
	err := row.Scan(&b.ID, &b.TranslationID, &b.Name, &b.Abbreviation, &b.Testament, &b.Position)
	return b, err
}
