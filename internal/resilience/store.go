package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/lectern/pkg/scripture"
	"github.com/MrWong99/lectern/pkg/scripture/seed"
)

// StoreFailure reports whether err means the store itself misbehaved.
// Misses and caller cancellations are answers, not faults.
func StoreFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, scripture.ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}

// FailoverStore is a [scripture.Store] that reads from a primary store and
// fails over to replicas while the primary keeps erroring. Every backend
// sits behind its own circuit breaker.
type FailoverStore struct {
	group *FallbackGroup[scripture.Store]
}

var (
	_ scripture.Store = (*FailoverStore)(nil)
	_ seed.Importer   = (*FailoverStore)(nil)
)

// NewFailoverStore wraps primary. The breaker config's IsFailure defaults to
// [StoreFailure].
func NewFailoverStore(primary scripture.Store, primaryName string, cfg CircuitBreakerConfig) *FailoverStore {
	if cfg.IsFailure == nil {
		cfg.IsFailure = StoreFailure
	}
	return &FailoverStore{
		group: NewFallbackGroup(primary, primaryName, FallbackConfig{CircuitBreaker: cfg}),
	}
}

// AddReplica appends a replica tried after the primary and any earlier
// replicas. Replicas must be added before the store is used.
func (s *FailoverStore) AddReplica(name string, replica scripture.Store) {
	s.group.AddFallback(name, replica)
}

// States returns the breaker state of every backend keyed by name.
func (s *FailoverStore) States() map[string]State { return s.group.States() }

func (s *FailoverStore) ListTranslations(ctx context.Context) ([]scripture.Translation, error) {
	return ExecuteWithResult(s.group, func(st scripture.Store) ([]scripture.Translation, error) {
		return st.ListTranslations(ctx)
	})
}

func (s *FailoverStore) TranslationByCode(ctx context.Context, code string) (scripture.Translation, error) {
	return ExecuteWithResult(s.group, func(st scripture.Store) (scripture.Translation, error) {
		return st.TranslationByCode(ctx, code)
	})
}

func (s *FailoverStore) ListBooks(ctx context.Context, translationID int64) ([]scripture.Book, error) {
	return ExecuteWithResult(s.group, func(st scripture.Store) ([]scripture.Book, error) {
		return st.ListBooks(ctx, translationID)
	})
}

func (s *FailoverStore) ResolveBookName(ctx context.Context, name string, translationID int64) (scripture.Book, error) {
	return ExecuteWithResult(s.group, func(st scripture.Store) (scripture.Book, error) {
		return st.ResolveBookName(ctx, name, translationID)
	})
}

func (s *FailoverStore) GetPassage(ctx context.Context, ref scripture.Reference) (scripture.Passage, error) {
	return ExecuteWithResult(s.group, func(st scripture.Store) (scripture.Passage, error) {
		return st.GetPassage(ctx, ref)
	})
}

func (s *FailoverStore) SearchScripture(ctx context.Context, query string, limit int) ([]scripture.Passage, error) {
	return ExecuteWithResult(s.group, func(st scripture.Store) ([]scripture.Passage, error) {
		return st.SearchScripture(ctx, query, limit)
	})
}

// Import writes t to every backend in order, bypassing the breakers, so
// that replicas hold the same translations under the same IDs. It stops at
// the first backend that fails or cannot import, and reports whether any
// backend wrote t.
func (s *FailoverStore) Import(ctx context.Context, t *seed.Translation) (bool, error) {
	var (
		written bool
		err     error
	)
	s.group.Each(func(name string, st scripture.Store) {
		if err != nil {
			return
		}
		imp, ok := st.(seed.Importer)
		if !ok {
			err = fmt.Errorf("%s: store cannot import", name)
			return
		}
		ok, ierr := imp.Import(ctx, t)
		if ierr != nil {
			err = fmt.Errorf("%s: %w", name, ierr)
			return
		}
		written = written || ok
	})
	return written, err
}

// Ping succeeds when any backend is reachable. Probes count toward the
// breakers, so readiness checks also drive recovery.
func (s *FailoverStore) Ping(ctx context.Context) error {
	return s.group.Execute(func(st scripture.Store) error { return st.Ping(ctx) })
}

// Close closes every backend and joins their errors.
func (s *FailoverStore) Close() error {
	var errs []error
	s.group.Each(func(name string, st scripture.Store) {
		if err := st.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	})
	return errors.Join(errs...)
}
