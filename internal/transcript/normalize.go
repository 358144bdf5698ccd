package transcript

import (
	"regexp"
	"strings"
)

var numberWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
	"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
	"eleven": "11", "twelve": "12", "thirteen": "13", "fourteen": "14",
	"fifteen": "15", "sixteen": "16", "seventeen": "17", "eighteen": "18",
	"nineteen": "19", "twenty": "20", "thirty": "30", "forty": "40",
	"fifty": "50", "first": "1", "second": "2", "third": "3",
}

var (
	numberWordRe = regexp.MustCompile(`\b(one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|thirteen|fourteen|fifteen|sixteen|seventeen|eighteen|nineteen|twenty|thirty|forty|fifty|first|second|third)\b`)
	fillerRe     = regexp.MustCompile(`\b(um|uh|er|ah|like|you know)\b`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// Normalize lowercases text, rewrites spoken numbers ("three", "first") to
// digits, strips filler words and collapses whitespace.
func Normalize(text string) string {
	return normalize(text, true)
}

func normalize(text string, spokenNumbers bool) string {
	s := strings.ToLower(strings.TrimSpace(text))
	if spokenNumbers {
		s = numberWordRe.ReplaceAllStringFunc(s, func(w string) string { return numberWords[w] })
	}
	s = fillerRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// debounceKeyLen is the number of leading runes of normalised text that
// identify a fragment for debouncing.
const debounceKeyLen = 50

func debounceKey(normalized string) string {
	r := []rune(normalized)
	if len(r) > debounceKeyLen {
		r = r[:debounceKeyLen]
	}
	return string(r)
}
