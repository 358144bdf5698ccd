// Package postgres is a PostgreSQL-backed [scripture.Store] for deployments
// that already run a shared database. Verse text is indexed with a generated
// tsvector column and searched with phraseto_tsquery.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	passages, _ := store.SearchScripture(ctx, "my shepherd", 10)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranslations = `
CREATE TABLE IF NOT EXISTS translations (
    id         BIGSERIAL PRIMARY KEY,
    code       TEXT      NOT NULL UNIQUE,
    name       TEXT      NOT NULL,
    language   TEXT      NOT NULL DEFAULT 'en',
    copyright  TEXT      NOT NULL DEFAULT ''
);
`

const ddlBooks = `
CREATE TABLE IF NOT EXISTS books (
    id              BIGSERIAL PRIMARY KEY,
    translation_id  BIGINT    NOT NULL REFERENCES translations (id) ON DELETE CASCADE,
    name            TEXT      NOT NULL,
    abbreviation    TEXT      NOT NULL,
    testament       TEXT      NOT NULL CHECK (testament IN ('OT', 'NT')),
    position        INTEGER   NOT NULL,
    UNIQUE (translation_id, position),
    UNIQUE (translation_id, name)
);

CREATE INDEX IF NOT EXISTS idx_books_translation ON books (translation_id);
CREATE INDEX IF NOT EXISTS idx_books_name_lower  ON books (translation_id, lower(name));

CREATE TABLE IF NOT EXISTS book_aliases (
    id                 BIGSERIAL PRIMARY KEY,
    book_id            BIGINT    NOT NULL REFERENCES books (id) ON DELETE CASCADE,
    alias              TEXT      NOT NULL,
    is_stt_correction  BOOLEAN   NOT NULL DEFAULT false,
    UNIQUE (book_id, alias)
);

CREATE INDEX IF NOT EXISTS idx_book_aliases_alias_lower ON book_aliases (lower(alias));
`

const ddlVerses = `
CREATE TABLE IF NOT EXISTS verses (
    id        BIGSERIAL PRIMARY KEY,
    book_id   BIGINT    NOT NULL REFERENCES books (id) ON DELETE CASCADE,
    chapter   INTEGER   NOT NULL,
    verse     INTEGER   NOT NULL,
    text      TEXT      NOT NULL,
    text_tsv  tsvector  GENERATED ALWAYS AS (to_tsvector('english', text)) STORED,
    UNIQUE (book_id, chapter, verse)
);

CREATE INDEX IF NOT EXISTS idx_verses_chapter ON verses (book_id, chapter);
CREATE INDEX IF NOT EXISTS idx_verses_fts     ON verses USING GIN (text_tsv);
`

// Migrate creates all tables and indexes. It is idempotent and safe to call
// on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlTranslations, ddlBooks, ddlVerses} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
