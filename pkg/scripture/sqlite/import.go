package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/lectern/pkg/scripture/seed"
)

// Import implements [seed.Importer]. Books, aliases and verses are written
// in one transaction and the FTS5 index is rebuilt before commit.
func (s *Store) Import(ctx context.Context, t *seed.Translation) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite store: begin import: %w", err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM translations WHERE code = ? COLLATE NOCASE`, t.Code).Scan(&existing)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("sqlite store: check translation: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO translations (code, name, language, copyright) VALUES (?, ?, ?, ?)`,
		t.Code, t.Name, t.Language, t.Copyright)
	if err != nil {
		return false, fmt.Errorf("sqlite store: insert translation: %w", err)
	}
	translationID, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("sqlite store: translation id: %w", err)
	}

	bookIDs := make(map[string]int64, len(t.Books))
	for _, b := range t.Books {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO books (translation_id, name, abbreviation, testament, position) VALUES (?, ?, ?, ?, ?)`,
			translationID, b.Name, b.Abbreviation, string(b.Testament), b.Position)
		if err != nil {
			return false, fmt.Errorf("sqlite store: insert book %q: %w", b.Name, err)
		}
		bookID, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("sqlite store: book id: %w", err)
		}
		bookIDs[strings.ToLower(b.Name)] = bookID

		for _, a := range b.AliasRows() {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO book_aliases (book_id, alias, is_stt_correction) VALUES (?, ?, ?)`,
				bookID, a.Alias, a.STTCorrection); err != nil {
				return false, fmt.Errorf("sqlite store: insert alias %q: %w", a.Alias, err)
			}
		}
	}

	for _, v := range t.Verses {
		bookID, ok := bookIDs[strings.ToLower(v.Book)]
		if !ok {
			return false, fmt.Errorf("sqlite store: verse references unknown book %q", v.Book)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO verses (book_id, chapter, verse, text) VALUES (?, ?, ?, ?)`,
			bookID, v.Chapter, v.Verse, v.Text); err != nil {
			return false, fmt.Errorf("sqlite store: insert verse %s %d:%d: %w", v.Book, v.Chapter, v.Verse, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO verses_fts(verses_fts) VALUES('rebuild')`); err != nil {
		return false, fmt.Errorf("sqlite store: rebuild fts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite store: commit import: %w", err)
	}
	return true, nil
}
