package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/lectern/internal/app"
	"github.com/MrWong99/lectern/internal/transcript"
	"github.com/MrWong99/lectern/internal/transcript/phonetic"
)

// ReplayCmd runs a recorded transcript through a fresh engine. Each input
// line is one final fragment, either plain text or "confidence<TAB>text".
// Blank lines and lines starting with '#' are skipped.
type ReplayCmd struct {
	File string        `arg:"" optional:"" help:"Transcript file (default stdin)" type:"path"`
	Step time.Duration `default:"0s" help:"Simulated time between fragments; 0 uses the wall clock"`
}

func (c *ReplayCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.setup()
	if err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if c.File != "" && c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var opts []transcript.Option
	var clock *stepClock
	if c.Step > 0 {
		clock = &stepClock{now: time.Now(), step: c.Step}
		opts = append(opts, transcript.WithClock(clock.Now))
	}
	e, err := app.NewEngine(st, cfg, phonetic.New(), opts...)
	if err != nil {
		return err
	}

	stats, err := replay(ctx, e, in, os.Stdout, clock)
	slog.Info("replay finished", "fragments", stats.fragments, "emitted", stats.emitted)
	return err
}

// stepClock advances by a fixed step per fragment.
type stepClock struct {
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time { return c.now }
func (c *stepClock) advance()       { c.now = c.now.Add(c.step) }

type replayStats struct {
	fragments int
	emitted   int
}

// replay processes every fragment in r and writes emitted items to w as
// JSON lines.
func replay(ctx context.Context, e *transcript.Engine, r io.Reader, w io.Writer, clock *stepClock) (replayStats, error) {
	var stats replayStats
	enc := json.NewEncoder(w)
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		conf, text, ok := parseReplayLine(sc.Text())
		if !ok {
			continue
		}
		if clock != nil && stats.fragments > 0 {
			clock.advance()
		}
		stats.fragments++

		res, err := e.Process(ctx, text, conf)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		if res.Item == nil {
			slog.Debug("fragment dropped", "line", line, "reason", res.Dropped, "intent", res.Intent.Type)
			continue
		}
		stats.emitted++
		if err := enc.Encode(res.Item); err != nil {
			return stats, err
		}
	}
	return stats, sc.Err()
}

// parseReplayLine splits an optional leading confidence from the text. A
// line without a valid confidence prefix is read as text at confidence 1.
func parseReplayLine(line string) (conf float64, text string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return 0, "", false
	}
	if head, rest, found := strings.Cut(line, "\t"); found {
		if c, err := strconv.ParseFloat(strings.TrimSpace(head), 64); err == nil && c >= 0 && c <= 1 {
			rest = strings.TrimSpace(rest)
			return c, rest, rest != ""
		}
	}
	return 1, line, true
}
