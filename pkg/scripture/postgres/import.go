package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/lectern/pkg/scripture/seed"
)

// Import implements [seed.Importer]. Everything is written in one
// transaction; aliases and verses are sent as pgx batches. The tsvector
// column is generated, so there is no separate index rebuild.
func (s *Store) Import(ctx context.Context, t *seed.Translation) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("postgres store: begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing int64
	err = tx.QueryRow(ctx, `SELECT id FROM translations WHERE lower(code) = lower($1)`, t.Code).Scan(&existing)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("postgres store: check translation: %w", err)
	}

	var translationID int64
	if err := tx.QueryRow(ctx,
		`INSERT INTO translations (code, name, language, copyright) VALUES ($1, $2, $3, $4) RETURNING id`,
		t.Code, t.Name, t.Language, t.Copyright).Scan(&translationID); err != nil {
		return false, fmt.Errorf("postgres store: insert translation: %w", err)
	}

	bookIDs := make(map[string]int64, len(t.Books))
	aliases := &pgx.Batch{}
	for _, b := range t.Books {
		var bookID int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO books (translation_id, name, abbreviation, testament, position)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			translationID, b.Name, b.Abbreviation, string(b.Testament), b.Position).Scan(&bookID); err != nil {
			return false, fmt.Errorf("postgres store: insert book %q: %w", b.Name, err)
		}
		bookIDs[strings.ToLower(b.Name)] = bookID
		for _, a := range b.AliasRows() {
			aliases.Queue(
				`INSERT INTO book_aliases (book_id, alias, is_stt_correction) VALUES ($1, $2, $3)
				 ON CONFLICT (book_id, alias) DO NOTHING`,
				bookID, a.Alias, a.STTCorrection)
		}
	}
	if err := tx.SendBatch(ctx, aliases).Close(); err != nil {
		return false, fmt.Errorf("postgres store: insert aliases: %w", err)
	}

	verses := &pgx.Batch{}
	for _, v := range t.Verses {
		bookID, ok := bookIDs[strings.ToLower(v.Book)]
		if !ok {
			return false, fmt.Errorf("postgres store: verse references unknown book %q", v.Book)
		}
		verses.Queue(
			`INSERT INTO verses (book_id, chapter, verse, text) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (book_id, chapter, verse) DO NOTHING`,
			bookID, v.Chapter, v.Verse, v.Text)
	}
	if err := tx.SendBatch(ctx, verses).Close(); err != nil {
		return false, fmt.Errorf("postgres store: insert verses: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("postgres store: commit import: %w", err)
	}
	return true, nil
}
