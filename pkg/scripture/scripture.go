// Package scripture defines the data model for the passage store and the
// reference parser shared by the store and the transcript engine.
//
// A [Reference] is what a speaker said ("john 3:16"); a [Passage] is what the
// store resolved it to ("John 3:16" plus verse text). Book names in a
// Reference are kept as spoken; the store resolves them against canonical
// names and the alias table.
package scripture

import (
	"strconv"
	"strings"
)

// DefaultTranslation is the translation code used when a reference does not
// name one.
const DefaultTranslation = "KJV"

// DefaultSearchLimit caps [Store.SearchScripture] when the caller passes a
// non-positive limit.
const DefaultSearchLimit = 20

// Testament is the canonical division a book belongs to.
type Testament string

const (
	// OldTestament is the Hebrew scriptures.
	OldTestament Testament = "OT"

	// NewTestament is the Christian scriptures.
	NewTestament Testament = "NT"
)

// IsValid reports whether t is a recognised testament.
func (t Testament) IsValid() bool {
	return t == OldTestament || t == NewTestament
}

// Translation is a single bible version, e.g. "KJV".
type Translation struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Language  string `json:"language"`
	Copyright string `json:"copyright,omitempty"`
}

// Book is one book of a translation. Position is 1-based canonical order.
type Book struct {
	ID            int64     `json:"id"`
	TranslationID int64     `json:"translation_id"`
	Name          string    `json:"name"`
	Abbreviation  string    `json:"abbreviation"`
	Testament     Testament `json:"testament"`
	Position      int       `json:"position"`
}

// BookAlias is an alternate spelling of a book name. Aliases are stored
// lowercase; STTCorrection marks aliases that exist only because speech
// recognisers commonly mishear the name ("philippines" for Philippians).
type BookAlias struct {
	ID            int64  `json:"id"`
	BookID        int64  `json:"book_id"`
	Alias         string `json:"alias"`
	STTCorrection bool   `json:"stt_correction"`
}

// Verse is a single verse row.
type Verse struct {
	ID      int64  `json:"id"`
	BookID  int64  `json:"book_id"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Text    string `json:"text"`
}

// Reference is an unresolved scripture reference.
//
// VerseStart and VerseEnd are zero when absent. Book holds the name as it
// was spoken or typed, not the canonical name, until a [Store] resolves it.
type Reference struct {
	Book        string `json:"book"`
	Chapter     int    `json:"chapter"`
	VerseStart  int    `json:"verse_start,omitempty"`
	VerseEnd    int    `json:"verse_end,omitempty"`
	Translation string `json:"translation"`

	// BookFromContext is set when the book and chapter were taken from the
	// previous reference rather than stated in the fragment.
	BookFromContext bool `json:"book_from_context,omitempty"`
}

// HasVerse reports whether the reference names at least one verse.
func (r Reference) HasVerse() bool { return r.VerseStart != 0 }

// Key returns the lowercase "translation:book:chapter:start:end" identity
// of the reference. Absent verse numbers render as empty segments.
func (r Reference) Key() string {
	parts := []string{
		r.Translation,
		r.Book,
		strconv.Itoa(r.Chapter),
		optionalInt(r.VerseStart),
		optionalInt(r.VerseEnd),
	}
	return strings.ToLower(strings.Join(parts, ":"))
}

// String renders the reference as typed, e.g. "john 3:16-17".
func (r Reference) String() string {
	return FormatDisplay(r.Book, r.Chapter, r.VerseStart, r.VerseEnd)
}

// Passage is a resolved reference with its text.
type Passage struct {
	// Reference is the request with Book replaced by the canonical name.
	Reference Reference `json:"reference"`

	// Display is the human-readable reference, e.g. "John 3:16-17".
	Display string `json:"display"`

	// Text is the verse texts joined by single spaces, in verse order.
	Text string `json:"text"`

	Verses []Verse `json:"verses"`
}

// FormatDisplay renders "Book chapter[:start[-end]]". The end verse is only
// shown when it is set and differs from start.
func FormatDisplay(book string, chapter, start, end int) string {
	var b strings.Builder
	b.WriteString(book)
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(chapter))
	if start != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(start))
		if end != 0 && end != start {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(end))
		}
	}
	return b.String()
}

// NewPassage assembles a passage from a resolved book and the verse rows
// returned for ref. It returns [ErrNotFound] when verses is empty.
func NewPassage(book Book, ref Reference, verses []Verse) (Passage, error) {
	if len(verses) == 0 {
		return Passage{}, ErrNotFound
	}
	texts := make([]string, len(verses))
	for i, v := range verses {
		texts[i] = v.Text
	}
	resolved := ref
	resolved.Book = book.Name
	return Passage{
		Reference: resolved,
		Display:   FormatDisplay(book.Name, ref.Chapter, ref.VerseStart, ref.VerseEnd),
		Text:      strings.Join(texts, " "),
		Verses:    verses,
	}, nil
}

// VersePassage builds the single-verse passage used for full-text search
// hits, displayed as "Book chapter:verse".
func VersePassage(bookName, translation string, v Verse) Passage {
	return Passage{
		Reference: Reference{
			Book:        bookName,
			Chapter:     v.Chapter,
			VerseStart:  v.Verse,
			Translation: translation,
		},
		Display: FormatDisplay(bookName, v.Chapter, v.Verse, 0),
		Text:    v.Text,
		Verses:  []Verse{v},
	}
}

func optionalInt(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
