// Package intent decides whether a normalised transcript fragment is a
// request to put scripture on screen.
//
// Classification is lexical: fixed phrase lists contribute weighted scores,
// per-profile wake and ignore phrases add stronger weights, and the net
// score is scaled by an aggressiveness multiplier before thresholding.
package intent

import (
	"math"
	"regexp"
	"strings"
)

// Type is the outcome of classification.
type Type string

const (
	// ExplicitDisplay is a direct instruction: "turn with me to John 3".
	ExplicitDisplay Type = "explicit_display"

	// ImplicitDisplay is a likely but indirect cue: "paul says in romans".
	ImplicitDisplay Type = "implicit_display"

	// ContextualReference mentions scripture without a display cue.
	ContextualReference Type = "contextual_reference"

	// RhetoricalThematic alludes to scripture figuratively.
	RhetoricalThematic Type = "rhetorical_thematic"
)

// Displayable reports whether fragments of this type should proceed to
// reference extraction.
func (t Type) Displayable() bool {
	return t == ExplicitDisplay || t == ImplicitDisplay
}

// Aggressiveness controls how readily ambiguous cues count as display
// intent.
type Aggressiveness string

const (
	Conservative Aggressiveness = "conservative"
	Balanced     Aggressiveness = "balanced"
	Responsive   Aggressiveness = "responsive"
)

// IsValid reports whether a is a recognised level.
func (a Aggressiveness) IsValid() bool {
	switch a {
	case Conservative, Balanced, Responsive:
		return true
	}
	return false
}

// Multiplier returns the factor applied to the net score. Unknown levels
// behave like [Balanced].
func (a Aggressiveness) Multiplier() float64 {
	switch a {
	case Conservative:
		return 0.8
	case Responsive:
		return 1.2
	default:
		return 1.0
	}
}

// Score weights.
const (
	strongWeight  = 2
	weakWeight    = 1
	negWeight     = 2
	wakeWeight    = 3
	ignoreWeight  = 3
	explicitFloor = 2.0
	implicitFloor = 1.0
)

// Classification is the result of [Classifier.Classify].
type Classification struct {
	Type       Type    `json:"type"`
	Confidence float64 `json:"confidence"`

	// Signals lists every phrase that matched, in evaluation order. Profile
	// phrases are prefixed "profile:" or "profile-ignore:", negative phrases
	// "negative:".
	Signals []string `json:"signals"`
}

// Options carries the per-call tuning.
type Options struct {
	Aggressiveness Aggressiveness

	// WakePhrases add +3 each when contained in the text.
	WakePhrases []string

	// IgnorePhrases add -3 each when contained in the text.
	IgnorePhrases []string

	// FollowUp is set while a chapter is in context. A cue-less fragment
	// that carries the reading on to another verse ("now verse 17") is then
	// classified as [ImplicitDisplay].
	FollowUp bool
}

// Option configures a [Classifier].
type Option func(*Classifier)

// WithStrongSignals replaces the +2 phrase list.
func WithStrongSignals(phrases ...string) Option {
	return func(c *Classifier) { c.strong = lowerAll(phrases) }
}

// WithWeakSignals replaces the +1 phrase list.
func WithWeakSignals(phrases ...string) Option {
	return func(c *Classifier) { c.weak = lowerAll(phrases) }
}

// WithNegativeSignals replaces the -2 phrase list.
func WithNegativeSignals(phrases ...string) Option {
	return func(c *Classifier) { c.negative = lowerAll(phrases) }
}

// Classifier scores text against phrase lists. It is read-only after
// construction and safe for concurrent use.
type Classifier struct {
	strong   []string
	weak     []string
	negative []string
}

// New returns a Classifier with the built-in phrase lists unless replaced by
// options.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		strong:   DefaultStrongSignals(),
		weak:     DefaultWeakSignals(),
		negative: DefaultNegativeSignals(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify scores text, which must already be lowercased and normalised.
// Phrase matching is plain substring containment.
func (c *Classifier) Classify(text string, opts Options) Classification {
	var (
		signals  []string
		positive int
		negative int
	)

	for _, p := range opts.WakePhrases {
		if p = strings.ToLower(p); p != "" && strings.Contains(text, p) {
			positive += wakeWeight
			signals = append(signals, "profile:"+p)
		}
	}
	for _, p := range opts.IgnorePhrases {
		if p = strings.ToLower(p); p != "" && strings.Contains(text, p) {
			negative += ignoreWeight
			signals = append(signals, "profile-ignore:"+p)
		}
	}
	for _, p := range c.strong {
		if strings.Contains(text, p) {
			positive += strongWeight
			signals = append(signals, p)
		}
	}
	for _, p := range c.weak {
		if strings.Contains(text, p) {
			positive += weakWeight
			signals = append(signals, p)
		}
	}
	for _, p := range c.negative {
		if strings.Contains(text, p) {
			negative += negWeight
			signals = append(signals, "negative:"+p)
		}
	}

	net := float64(positive-negative) * opts.Aggressiveness.Multiplier()

	out := Classification{Signals: signals}
	switch {
	case net >= explicitFloor:
		out.Type = ExplicitDisplay
		out.Confidence = math.Min(0.95, 0.7+net*0.1)
	case net >= implicitFloor:
		out.Type = ImplicitDisplay
		out.Confidence = math.Min(0.8, 0.5+net*0.1)
	case negative > 0:
		out.Type = RhetoricalThematic
		out.Confidence = 0.3
	case opts.FollowUp && continuationPattern.MatchString(text):
		out.Type = ImplicitDisplay
		out.Confidence = 0.6
		out.Signals = append(out.Signals, "continuation")
	default:
		out.Type = ContextualReference
		out.Confidence = 0.4
	}
	return out
}

// continuationPattern matches a fragment that opens with a linking word and
// moves straight to a verse number: "now verse 17", "and verses 18 to 20".
var continuationPattern = regexp.MustCompile(`^(?:(?:now|and|then|so|next),?\s+)+(?:(?:look at|read)\s+)?verses?\s+\d+`)

// DefaultStrongSignals returns the built-in +2 phrases.
func DefaultStrongSignals() []string {
	return []string{
		"turn with me to",
		"let's read",
		"put up",
		"open your bibles to",
		"can we show",
		"let's look at",
		"go to",
		"read from",
		"turn to",
		"let's go to",
		"please turn to",
		"if you have your bibles",
		"the bible says in",
	}
}

// DefaultWeakSignals returns the built-in +1 phrases.
func DefaultWeakSignals() []string {
	return []string{
		"in romans",
		"paul says",
		"the bible tells us",
		"scripture says",
		"we read that",
		"as it says in",
		"according to",
		"it says in",
	}
}

// DefaultNegativeSignals returns the built-in -2 phrases.
func DefaultNegativeSignals() []string {
	return []string{
		"paul told them",
		"in essence",
		"basically",
		"so to speak",
		"as they say",
		"metaphorically",
		"like when",
		"similar to",
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
