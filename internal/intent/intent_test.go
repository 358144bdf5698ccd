package intent_test

import (
	"math"
	"slices"
	"testing"

	"github.com/MrWong99/lectern/internal/intent"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestClassify(t *testing.T) {
	t.Parallel()

	c := intent.New()

	tests := []struct {
		name     string
		text     string
		opts     intent.Options
		wantType intent.Type
		wantConf float64
	}{
		{
			name:     "strong cue",
			text:     "turn with me to john 3:16",
			wantType: intent.ExplicitDisplay,
			wantConf: 0.9,
		},
		{
			name:     "two strong cues cap at 0.95",
			text:     "please turn to romans 8 and let's read verse 28",
			wantType: intent.ExplicitDisplay,
			wantConf: 0.95,
		},
		{
			name:     "weak cue",
			text:     "paul says in romans 8:28",
			wantType: intent.ExplicitDisplay,
			wantConf: 0.9,
		},
		{
			name:     "single weak cue",
			text:     "as we know the bible tells us to love",
			wantType: intent.ImplicitDisplay,
			wantConf: 0.6,
		},
		{
			name:     "rhetorical",
			text:     "he basically said it's being lost, similar to the prodigal son",
			wantType: intent.RhetoricalThematic,
			wantConf: 0.3,
		},
		{
			name:     "no cue",
			text:     "john 3:16",
			wantType: intent.ContextualReference,
			wantConf: 0.4,
		},
		{
			name:     "strong cancelled by negative",
			text:     "basically go to the store",
			wantType: intent.RhetoricalThematic,
			wantConf: 0.3,
		},
		{
			name:     "conservative demotes single strong cue",
			text:     "turn to john 3",
			opts:     intent.Options{Aggressiveness: intent.Conservative},
			wantType: intent.ImplicitDisplay,
			wantConf: 0.66,
		},
		{
			name:     "responsive promotes weak pair",
			text:     "scripture says, according to isaiah",
			opts:     intent.Options{Aggressiveness: intent.Responsive},
			wantType: intent.ExplicitDisplay,
			wantConf: 0.94,
		},
		{
			name:     "verse follow-up with chapter in context",
			text:     "now verse 17",
			opts:     intent.Options{FollowUp: true},
			wantType: intent.ImplicitDisplay,
			wantConf: 0.6,
		},
		{
			name:     "verse follow-up ignores aggressiveness",
			text:     "and then, verses 18-20",
			opts:     intent.Options{FollowUp: true, Aggressiveness: intent.Conservative},
			wantType: intent.ImplicitDisplay,
			wantConf: 0.6,
		},
		{
			name:     "verse follow-up without chapter",
			text:     "now verse 17",
			wantType: intent.ContextualReference,
			wantConf: 0.4,
		},
		{
			name:     "follow-up must lead the fragment",
			text:     "i love verse 17 now",
			opts:     intent.Options{FollowUp: true},
			wantType: intent.ContextualReference,
			wantConf: 0.4,
		},
		{
			name:     "negative beats follow-up",
			text:     "now verse 17 basically",
			opts:     intent.Options{FollowUp: true},
			wantType: intent.RhetoricalThematic,
			wantConf: 0.3,
		},
		{
			name:     "profile wake phrase",
			text:     "church, look with me at john 3",
			opts:     intent.Options{WakePhrases: []string{"Look With Me"}},
			wantType: intent.ExplicitDisplay,
			wantConf: 0.95,
		},
		{
			name:     "profile ignore phrase",
			text:     "turn to your neighbour and say hello",
			opts:     intent.Options{IgnorePhrases: []string{"your neighbour"}},
			wantType: intent.RhetoricalThematic,
			wantConf: 0.3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tc.text, tc.opts)
			if got.Type != tc.wantType {
				t.Errorf("Type=%q, want %q (signals %q)", got.Type, tc.wantType, got.Signals)
			}
			if !approx(got.Confidence, tc.wantConf) {
				t.Errorf("Confidence=%v, want %v", got.Confidence, tc.wantConf)
			}
		})
	}
}

func TestClassify_SignalLabels(t *testing.T) {
	t.Parallel()

	c := intent.New()
	got := c.Classify("look with me, turn to romans, basically skip", intent.Options{
		WakePhrases:   []string{"look with me"},
		IgnorePhrases: []string{"skip"},
	})

	want := []string{"profile:look with me", "profile-ignore:skip", "turn to", "negative:basically"}
	if !slices.Equal(got.Signals, want) {
		t.Errorf("Signals=%q, want %q", got.Signals, want)
	}
}

func TestClassify_CustomLists(t *testing.T) {
	t.Parallel()

	c := intent.New(
		intent.WithStrongSignals("Zeige"),
		intent.WithWeakSignals(),
		intent.WithNegativeSignals(),
	)
	if got := c.Classify("zeige johannes 3", intent.Options{}); got.Type != intent.ExplicitDisplay {
		t.Errorf("custom strong signal: Type=%q, want explicit", got.Type)
	}
	if got := c.Classify("turn to john 3", intent.Options{}); got.Type != intent.ContextualReference {
		t.Errorf("default list should be replaced: Type=%q", got.Type)
	}
}

func TestAggressiveness(t *testing.T) {
	t.Parallel()

	for _, a := range []intent.Aggressiveness{intent.Conservative, intent.Balanced, intent.Responsive} {
		if !a.IsValid() {
			t.Errorf("%q.IsValid()=false", a)
		}
	}
	if intent.Aggressiveness("wild").IsValid() {
		t.Error(`"wild".IsValid()=true`)
	}
	if got := intent.Aggressiveness("").Multiplier(); got != 1.0 {
		t.Errorf("empty Multiplier()=%v, want 1.0", got)
	}
}
