package transcript

import (
	"time"

	"github.com/MrWong99/lectern/internal/intent"
)

// VerseStyle describes how a speaker says verse numbers.
type VerseStyle string

const (
	// VerseStyleSpoken means numbers arrive as words ("john three sixteen")
	// and are rewritten to digits during normalisation.
	VerseStyleSpoken VerseStyle = "spoken"

	// VerseStyleNumeric means the recogniser already emits digits; spoken
	// number words are left alone so that phrases like "first love" are not
	// rewritten.
	VerseStyleNumeric VerseStyle = "numeric"
)

// IsValid reports whether s is a recognised style. The empty style counts
// as [VerseStyleSpoken].
func (s VerseStyle) IsValid() bool {
	return s == "" || s == VerseStyleSpoken || s == VerseStyleNumeric
}

// Profile tunes the engine for one speaker.
type Profile struct {
	ID   string
	Name string

	// WakePhrases are speaker habits that signal a display request.
	WakePhrases []string

	// IgnorePhrases are speaker habits that never signal one.
	IgnorePhrases []string

	Aggressiveness intent.Aggressiveness

	// ContextTimeout replaces the engine's chapter-context timeout while the
	// profile is active.
	ContextTimeout time.Duration

	VerseStyle VerseStyle
}
