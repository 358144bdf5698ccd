package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or
// has an open circuit breaker.
var ErrAllFailed = errors.New("all backends failed")

// FallbackConfig configures the breaker created for each entry of a
// [FallbackGroup]. Its IsFailure also decides failover: an error it rejects
// is an answer, returned at once without trying the next entry.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallbacks of the same type,
// each behind its own breaker. Calls go to the first entry whose breaker
// admits them; a failing entry hands the call to the next one.
//
// Fallbacks must be added before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry. Entries are tried in the order they were
// added.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Each calls fn for every entry in order, bypassing the breakers.
func (fg *FallbackGroup[T]) Each(fn func(name string, v T)) {
	for _, e := range fg.entries {
		fn(e.name, e.value)
	}
}

// States returns each entry's breaker state keyed by entry name.
func (fg *FallbackGroup[T]) States() map[string]State {
	out := make(map[string]State, len(fg.entries))
	for _, e := range fg.entries {
		out[e.name] = e.breaker.State()
	}
	return out
}

// Execute tries fn against each entry until one answers.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult tries fn against each entry until one answers and
// returns that entry's result. An entry answers when fn succeeds or returns
// an error the breaker does not count as a failure. When every entry fails
// the error wraps [ErrAllFailed] and the last failure.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrCircuitOpen) && !entry.breaker.isFailure(err) {
			return result, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend, circuit open", "backend", entry.name)
		} else if i < len(fg.entries)-1 {
			slog.Warn("backend failed, trying next", "backend", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
