// Package seed reads translation data (books, aliases and verses) from YAML
// and hands it to a store for import. The default King James sample is
// embedded in the binary.
//
// File format:
//
//	code: KJV
//	name: King James Version
//	language: en
//	books:
//	  - name: John
//	    abbreviation: John
//	    testament: NT
//	    position: 43
//	    aliases: ["jn", "jhn"]
//	    stt_corrections: ["jon"]
//	verses:
//	  - {book: John, chapter: 3, verse: 16, text: "For God so loved the world..."}
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/lectern/pkg/scripture"
)

//go:embed kjv.yaml
var defaultKJV []byte

// Translation is one seed file.
type Translation struct {
	Code      string `yaml:"code"`
	Name      string `yaml:"name"`
	Language  string `yaml:"language"`
	Copyright string `yaml:"copyright"`
	Books     []Book  `yaml:"books"`
	Verses    []Verse `yaml:"verses"`
}

// Book is a book definition with its spoken variants.
type Book struct {
	Name         string              `yaml:"name"`
	Abbreviation string              `yaml:"abbreviation"`
	Testament    scripture.Testament `yaml:"testament"`

	// Position is the 1-based canonical order. Zero means "index in the
	// file plus one".
	Position int `yaml:"position"`

	// Aliases are alternate spellings and abbreviations.
	Aliases []string `yaml:"aliases"`

	// STTCorrections are aliases that only exist because speech recognisers
	// mishear the name.
	STTCorrections []string `yaml:"stt_corrections"`
}

// Verse is one verse keyed by canonical book name.
type Verse struct {
	Book    string `yaml:"book"`
	Chapter int    `yaml:"chapter"`
	Verse   int    `yaml:"verse"`
	Text    string `yaml:"text"`
}

// Importer is implemented by stores that can be seeded.
type Importer interface {
	// Import writes t in one transaction and rebuilds the text index.
	// It returns false without writing anything when a translation with the
	// same code already exists.
	Import(ctx context.Context, t *Translation) (bool, error)
}

// Default returns the embedded King James sample.
func Default() (*Translation, error) {
	t, err := LoadFromReader(bytes.NewReader(defaultKJV))
	if err != nil {
		return nil, fmt.Errorf("seed: embedded kjv: %w", err)
	}
	return t, nil
}

// Load reads and validates a seed file from disk.
func Load(path string) (*Translation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: open %q: %w", path, err)
	}
	defer f.Close()

	t, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("seed: %q: %w", path, err)
	}
	return t, nil
}

// LoadFromReader parses and validates seed YAML. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Translation, error) {
	var t Translation
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("seed: decode yaml: %w", err)
	}
	t.applyDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFiles parses several seed files concurrently. The result keeps the
// order of paths.
func LoadFiles(ctx context.Context, paths []string) ([]*Translation, error) {
	out := make([]*Translation, len(paths))
	g, _ := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			t, err := Load(p)
			if err != nil {
				return err
			}
			out[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply imports every translation into imp, skipping ones that already
// exist. It returns the codes that were actually written.
func Apply(ctx context.Context, imp Importer, translations ...*Translation) ([]string, error) {
	var written []string
	for _, t := range translations {
		ok, err := imp.Import(ctx, t)
		if err != nil {
			return written, fmt.Errorf("seed: import %s: %w", t.Code, err)
		}
		if ok {
			written = append(written, t.Code)
		}
	}
	return written, nil
}

// Validate checks the translation for the constraints the store schema
// enforces, so that an import fails before it opens a transaction.
func (t *Translation) Validate() error {
	var errs []error
	if strings.TrimSpace(t.Code) == "" {
		errs = append(errs, errors.New("code must not be empty"))
	}
	if strings.TrimSpace(t.Name) == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}

	names := make(map[string]struct{}, len(t.Books))
	positions := make(map[int]struct{}, len(t.Books))
	for i, b := range t.Books {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("books[%d]: name must not be empty", i))
		}
		if !b.Testament.IsValid() {
			errs = append(errs, fmt.Errorf("books[%d] %q: testament %q must be OT or NT", i, b.Name, b.Testament))
		}
		key := strings.ToLower(b.Name)
		if _, dup := names[key]; dup {
			errs = append(errs, fmt.Errorf("books[%d]: duplicate name %q", i, b.Name))
		}
		names[key] = struct{}{}
		if _, dup := positions[b.Position]; dup {
			errs = append(errs, fmt.Errorf("books[%d] %q: duplicate position %d", i, b.Name, b.Position))
		}
		positions[b.Position] = struct{}{}
	}

	type verseKey struct {
		book           string
		chapter, verse int
	}
	seen := make(map[verseKey]struct{}, len(t.Verses))
	for i, v := range t.Verses {
		key := verseKey{strings.ToLower(v.Book), v.Chapter, v.Verse}
		if _, ok := names[key.book]; !ok {
			errs = append(errs, fmt.Errorf("verses[%d]: unknown book %q", i, v.Book))
		}
		if v.Chapter < 1 || v.Verse < 1 {
			errs = append(errs, fmt.Errorf("verses[%d] %s: chapter and verse must be positive", i, v.Book))
		}
		if _, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("verses[%d]: duplicate %s %d:%d", i, v.Book, v.Chapter, v.Verse))
		}
		seen[key] = struct{}{}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("seed: translation %q: %w", t.Code, errors.Join(errs...))
}

// AliasRows returns the alias rows to store for b: every alias and
// correction lowercased, plus the lowercased canonical name, without
// duplicates. BookID is left zero for the caller to fill in.
func (b Book) AliasRows() []scripture.BookAlias {
	seen := make(map[string]struct{})
	var rows []scripture.BookAlias
	add := func(alias string, correction bool) {
		a := strings.ToLower(strings.TrimSpace(alias))
		if a == "" {
			return
		}
		if _, dup := seen[a]; dup {
			return
		}
		seen[a] = struct{}{}
		rows = append(rows, scripture.BookAlias{Alias: a, STTCorrection: correction})
	}
	for _, a := range b.Aliases {
		add(a, false)
	}
	for _, a := range b.STTCorrections {
		add(a, true)
	}
	add(b.Name, false)
	return rows
}

func (t *Translation) applyDefaults() {
	if t.Language == "" {
		t.Language = "en"
	}
	for i := range t.Books {
		if t.Books[i].Position == 0 {
			t.Books[i].Position = i + 1
		}
		if t.Books[i].Abbreviation == "" {
			t.Books[i].Abbreviation = t.Books[i].Name
		}
	}
}
