// Package sqlite is the default [scripture.Store]: a single SQLite file using
// the pure-Go modernc.org/sqlite driver, with an FTS5 index over verse text.
//
// Usage:
//
//	store, err := sqlite.Open(ctx, "data/scripture.db")
//	if err != nil { … }
//	defer store.Close()
//
//	kjv, _ := seed.Default()
//	_, _ = store.Import(ctx, kjv)
//
//	p, err := store.GetPassage(ctx, scripture.Reference{Book: "jn", Chapter: 3, VerseStart: 16, Translation: "KJV"})
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by [Migrate]. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS translations (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    code      TEXT    UNIQUE NOT NULL,
    name      TEXT    NOT NULL,
    language  TEXT    NOT NULL DEFAULT 'en',
    copyright TEXT
)`,
	`CREATE TABLE IF NOT EXISTS books (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    translation_id INTEGER NOT NULL REFERENCES translations (id),
    name           TEXT    NOT NULL,
    abbreviation   TEXT    NOT NULL,
    testament      TEXT    NOT NULL CHECK (testament IN ('OT', 'NT')),
    position       INTEGER NOT NULL,
    UNIQUE (translation_id, position),
    UNIQUE (translation_id, name)
)`,
	`CREATE TABLE IF NOT EXISTS book_aliases (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    book_id           INTEGER NOT NULL REFERENCES books (id),
    alias             TEXT    NOT NULL,
    is_stt_correction INTEGER NOT NULL DEFAULT 0,
    UNIQUE (book_id, alias)
)`,
	`CREATE TABLE IF NOT EXISTS verses (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    book_id INTEGER NOT NULL REFERENCES books (id),
    chapter INTEGER NOT NULL,
    verse   INTEGER NOT NULL,
    text    TEXT    NOT NULL,
    UNIQUE (book_id, chapter, verse)
)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS verses_fts USING fts5(
    text,
    content='verses',
    content_rowid='id'
)`,
	`CREATE INDEX IF NOT EXISTS idx_books_translation ON books (translation_id)`,
	`CREATE INDEX IF NOT EXISTS idx_verses_book ON verses (book_id)`,
	`CREATE INDEX IF NOT EXISTS idx_verses_chapter ON verses (book_id, chapter)`,
	`CREATE INDEX IF NOT EXISTS idx_book_aliases_alias ON book_aliases (alias COLLATE NOCASE)`,
}

// Migrate creates all tables, the FTS5 index and secondary indexes. It is
// safe to call on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite migrate: %w", err)
		}
	}
	return nil
}
