package scripture_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/lectern/pkg/scripture"
)

func TestParseReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  scripture.Reference
		ok    bool
	}{
		{"John 3:16-17", scripture.Reference{Book: "john", Chapter: 3, VerseStart: 16, VerseEnd: 17, Translation: "KJV"}, true},
		{"  john 3:16  ", scripture.Reference{Book: "john", Chapter: 3, VerseStart: 16, Translation: "KJV"}, true},
		{"Psalm 23", scripture.Reference{Book: "psalm", Chapter: 23, Translation: "KJV"}, true},
		{"1 Corinthians 13:1-13", scripture.Reference{Book: "1 corinthians", Chapter: 13, VerseStart: 1, VerseEnd: 13, Translation: "KJV"}, true},
		{"Song of Solomon 2:4", scripture.Reference{Book: "song of solomon", Chapter: 2, VerseStart: 4, Translation: "KJV"}, true},
		{"turn with me to john 3:16", scripture.Reference{Book: "turn with me to john", Chapter: 3, VerseStart: 16, Translation: "KJV"}, true},
		{"for god so loved the world", scripture.Reference{}, false},
		{"john 3:16 please", scripture.Reference{}, false},
		{"3:16", scripture.Reference{}, false},
		{"", scripture.Reference{}, false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			got, ok := scripture.ParseReference(tc.input, "")
			if ok != tc.ok {
				t.Fatalf("ParseReference(%q) ok=%v, want %v", tc.input, ok, tc.ok)
			}
			if got != tc.want {
				t.Errorf("ParseReference(%q)=%+v, want %+v", tc.input, got, tc.want)
			}
		})
	}
}

func TestParseReference_Translation(t *testing.T) {
	t.Parallel()

	got, ok := scripture.ParseReference("john 1:1", "ASV")
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Translation != "ASV" {
		t.Errorf("Translation=%q, want %q", got.Translation, "ASV")
	}
}

func TestInlineReferences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want []string
	}{
		{"let's read john chapter 3 together", []string{"read john 3", "john chapter 3", "chapter 3"}},
		{"open to romans 8, verse 28 now", []string{"to romans 8:28", "romans 8:28", "verse 28"}},
		{"turn to 1 corinthians 13", []string{"turn to 1", "to 1", "1 corinthians 13", "corinthians 13"}},
		{"john 3:16-17", []string{"john 3:16-17"}},
		{"john chapter 3 verse 16", []string{"john chapter 3:16", "chapter 3:16", "3 verse 16", "verse 16"}},
		{"no reference here", nil},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			var got []string
			for _, r := range scripture.InlineReferences(tc.text, "") {
				got = append(got, r.String())
			}
			if !slices.Equal(got, tc.want) {
				t.Errorf("InlineReferences(%q)=%q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestParseVerseOnly(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text       string
		start, end int
		ok         bool
	}{
		{"now verse 17", 17, 0, true},
		{"look at verse 5-7", 5, 7, true},
		{"v. 4", 4, 0, true},
		{"verse 2 – 3", 2, 3, true},
		{"in the beginning", 0, 0, false},
		{"give 5 dollars", 0, 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			start, end, ok := scripture.ParseVerseOnly(tc.text)
			if ok != tc.ok || start != tc.start || end != tc.end {
				t.Errorf("ParseVerseOnly(%q)=(%d,%d,%v), want (%d,%d,%v)",
					tc.text, start, end, ok, tc.start, tc.end, tc.ok)
			}
		})
	}
}

func TestBookCandidates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phrase string
		want   []string
	}{
		{"turn with me to john", []string{"turn with me to john", "with me to john", "me to john", "to john", "john"}},
		{"john chapter", []string{"john"}},
		{"1 Corinthians", []string{"1 corinthians", "corinthians"}},
		{"", []string{}},
	}

	for _, tc := range tests {
		got := scripture.BookCandidates(tc.phrase)
		if !slices.Equal(got, tc.want) {
			t.Errorf("BookCandidates(%q)=%q, want %q", tc.phrase, got, tc.want)
		}
	}
}

func TestFormatDisplay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		book       string
		ch, vs, ve int
		want       string
	}{
		{"John", 3, 16, 17, "John 3:16-17"},
		{"John", 3, 16, 16, "John 3:16"},
		{"John", 3, 16, 0, "John 3:16"},
		{"Psalms", 23, 0, 0, "Psalms 23"},
	}
	for _, tc := range tests {
		if got := scripture.FormatDisplay(tc.book, tc.ch, tc.vs, tc.ve); got != tc.want {
			t.Errorf("FormatDisplay(%q,%d,%d,%d)=%q, want %q", tc.book, tc.ch, tc.vs, tc.ve, got, tc.want)
		}
	}
}

func TestReferenceKey(t *testing.T) {
	t.Parallel()

	r := scripture.Reference{Book: "John", Chapter: 3, VerseStart: 16, Translation: "KJV"}
	if got, want := r.Key(), "kjv:john:3:16:"; got != want {
		t.Errorf("Key()=%q, want %q", got, want)
	}
	r.VerseEnd = 17
	if got, want := r.Key(), "kjv:john:3:16:17"; got != want {
		t.Errorf("Key()=%q, want %q", got, want)
	}
}

func TestNewPassage_Empty(t *testing.T) {
	t.Parallel()

	_, err := scripture.NewPassage(scripture.Book{Name: "John"}, scripture.Reference{Book: "jn", Chapter: 99}, nil)
	if !errors.Is(err, scripture.ErrNotFound) {
		t.Errorf("err=%v, want ErrNotFound", err)
	}
}

func TestNewPassage(t *testing.T) {
	t.Parallel()

	verses := []scripture.Verse{
		{Chapter: 3, Verse: 16, Text: "For God so loved the world,"},
		{Chapter: 3, Verse: 17, Text: "For God sent not his Son"},
	}
	p, err := scripture.NewPassage(scripture.Book{Name: "John"},
		scripture.Reference{Book: "jn", Chapter: 3, VerseStart: 16, VerseEnd: 17, Translation: "KJV"}, verses)
	if err != nil {
		t.Fatalf("NewPassage: %v", err)
	}
	if p.Display != "John 3:16-17" {
		t.Errorf("Display=%q, want %q", p.Display, "John 3:16-17")
	}
	if p.Reference.Book != "John" {
		t.Errorf("Reference.Book=%q, want canonical %q", p.Reference.Book, "John")
	}
	if want := "For God so loved the world, For God sent not his Son"; p.Text != want {
		t.Errorf("Text=%q, want %q", p.Text, want)
	}
}
