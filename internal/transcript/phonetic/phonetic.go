// Package phonetic recovers misheard bible book names using Double Metaphone
// encoding combined with Jaro-Winkler similarity.
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the spoken phrase and of each book name. A book whose codes
//     overlap the phrase's codes becomes a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the book with the
//     highest similarity wins, provided it reaches the phonetic threshold.
//     When no phonetic candidate qualifies, a secondary pass accepts the best
//     pure Jaro-Winkler score above the stricter fuzzy threshold.
//
// Numbered books ("1 Corinthians", "2 Kings") only match phrases that start
// with the same numeral, so "1 corinthans" can never resolve to
// "2 Corinthians". Similarity is computed on the full phrase and on its
// space-stripped form; single tokens are never compared pairwise, which keeps
// "song of salmon" from matching any book that merely contains "of".
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically matching book. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a book with no
// phonetic overlap. Default: 0.90.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher matches spoken phrases against book names. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the book from books that phrase most likely names. When
// matched is false, book is empty and score is 0.
func (m *Matcher) Match(phrase string, books []string) (book string, score float64, matched bool) {
	num, tokens := splitNumeral(strings.Fields(strings.ToLower(phrase)))
	if len(tokens) == 0 {
		return "", 0, false
	}
	inputCodes := codesForTokens(tokens)

	type candidate struct {
		book     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, b := range books {
		bookNum, bookTokens := splitNumeral(strings.Fields(strings.ToLower(b)))
		if bookNum != num || len(bookTokens) == 0 {
			continue
		}

		phoneticMatch := codesOverlap(inputCodes, codesForTokens(bookTokens))
		jw := bestJWScore(tokens, bookTokens)

		if phoneticMatch {
			if jw >= m.phoneticThreshold && (!best.phonetic || jw > best.score) {
				best = candidate{book: b, score: jw, phonetic: true}
			}
		} else if !best.phonetic && jw >= m.fuzzyThreshold && jw > best.score {
			best = candidate{book: b, score: jw}
		}
	}

	if best.book == "" {
		return "", 0, false
	}
	return best.book, best.score, true
}

// splitNumeral separates a leading book numeral ("1", "2", "3") from the
// remaining tokens.
func splitNumeral(tokens []string) (string, []string) {
	if len(tokens) > 0 {
		switch tokens[0] {
		case "1", "2", "3":
			return tokens[0], tokens[1:]
		}
	}
	return "", tokens
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore compares the space-joined phrases and, for multi-word input
// or book names, their space-stripped forms ("song of songs" vs
// "songofsongs").
func bestJWScore(input, book []string) float64 {
	score := matchr.JaroWinkler(strings.Join(input, " "), strings.Join(book, " "), false)
	if len(input) > 1 || len(book) > 1 {
		if s := matchr.JaroWinkler(strings.Join(input, ""), strings.Join(book, ""), false); s > score {
			score = s
		}
	}
	return score
}
