package scripture

import (
	"regexp"
	"strconv"
	"strings"
)

// bookPhrase matches one or more words with an optional leading numeral,
// e.g. "john", "1 corinthians", "song of solomon".
const bookPhrase = `(\d?\s*[a-z]+(?:\s+[a-z]+)*)`

// pattern is one step of the anchored reference cascade. Groups are
// book, chapter, and optionally start and end verse.
type pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// anchoredPatterns are tried in order against the whole input; the most
// specific form wins.
var anchoredPatterns = []pattern{
	{Name: "range", Regex: regexp.MustCompile(`(?i)^` + bookPhrase + `\s+(\d+):(\d+)-(\d+)$`)},
	{Name: "verse", Regex: regexp.MustCompile(`(?i)^` + bookPhrase + `\s+(\d+):(\d+)$`)},
	{Name: "chapter", Regex: regexp.MustCompile(`(?i)^` + bookPhrase + `\s+(\d+)$`)},
}

// inlinePattern finds a book of one or two words followed by a chapter and
// an optional verse or range anywhere in running speech: "john chapter 3",
// "romans 8, verse 28", "john chapter 3 verse 16", "john 3:16-17".
var inlinePattern = regexp.MustCompile(`(?i)^(\d?\s*[a-z]+(?:\s+[a-z]+)?)\s+(?:chapter\s+)?(\d+)(?:(?:\s*[,:]\s*(?:verse\s+)?|\s+verse\s+)(\d+)(?:\s*[-–]\s*(\d+))?)?`)

// verseOnlyPattern finds a bare "verse 5", "verse 5-7" or "v. 5".
var verseOnlyPattern = regexp.MustCompile(`(?i)\b(?:verse|v\.?)\s*(\d+)(?:\s*[-–]\s*(\d+))?`)

// ParseReference parses a complete reference such as "John 3:16-17",
// "1 Corinthians 13:1" or "Psalm 23". The whole trimmed input must match.
// An empty translation means [DefaultTranslation].
func ParseReference(input, translation string) (Reference, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	for _, p := range anchoredPatterns {
		m := p.Regex.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		return referenceFromGroups(m[1:], translation)
	}
	return Reference{}, false
}

// InlineReferences returns every book-and-chapter reference found in text,
// scanning from each word start in order. Overlapping candidates are all
// returned: for "turn to 1 corinthians 13" both {to 1} and
// {1 corinthians 13} appear, and it is up to the caller to keep the first
// one whose book resolves.
func InlineReferences(text, translation string) []Reference {
	normalized := strings.ToLower(text)
	var refs []Reference
	for _, start := range wordStarts(normalized) {
		m := inlinePattern.FindStringSubmatch(normalized[start:])
		if m == nil {
			continue
		}
		if ref, ok := referenceFromGroups(m[1:], translation); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// ParseVerseOnly finds a verse number without a book, e.g. "now verse 17".
// end is zero when no range was given.
func ParseVerseOnly(text string) (start, end int, ok bool) {
	m := verseOnlyPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	start, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	if m[2] != "" {
		if end, err = strconv.Atoi(m[2]); err != nil {
			return 0, 0, false
		}
	}
	return start, end, true
}

// BookCandidates returns the names worth trying for a book phrase captured
// from running speech, longest first. Lead-in words are dropped one at a
// time so that "turn with me to john" yields "john" eventually, and a
// trailing "chapter" is ignored.
func BookCandidates(phrase string) []string {
	words := strings.Fields(strings.ToLower(phrase))
	if n := len(words); n > 1 && words[n-1] == "chapter" {
		words = words[:n-1]
	}
	out := make([]string, 0, len(words))
	for i := range words {
		out = append(out, strings.Join(words[i:], " "))
	}
	return out
}

// referenceFromGroups converts book, chapter, start and end submatches into
// a Reference. Missing trailing groups are allowed.
func referenceFromGroups(groups []string, translation string) (Reference, bool) {
	if translation == "" {
		translation = DefaultTranslation
	}
	group := func(i int) string {
		if i < len(groups) {
			return groups[i]
		}
		return ""
	}
	chapter, err := strconv.Atoi(group(1))
	if err != nil {
		return Reference{}, false
	}
	ref := Reference{
		Book:        strings.Join(strings.Fields(group(0)), " "),
		Chapter:     chapter,
		Translation: translation,
	}
	if s := group(2); s != "" {
		if ref.VerseStart, err = strconv.Atoi(s); err != nil {
			return Reference{}, false
		}
	}
	if s := group(3); s != "" {
		if ref.VerseEnd, err = strconv.Atoi(s); err != nil {
			return Reference{}, false
		}
	}
	return ref, true
}

// wordStarts returns the byte offsets at which a non-space run begins.
func wordStarts(s string) []int {
	var starts []int
	inSpace := true
	for i, r := range s {
		space := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if !space && inSpace {
			starts = append(starts, i)
		}
		inSpace = space
	}
	return starts
}
