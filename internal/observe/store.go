package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/lectern/pkg/scripture"
)

// Store wraps a [scripture.Store] with a span and a latency observation per
// call. Ping and Close pass straight through.
type Store struct {
	scripture.Store
	m *Metrics
}

var _ scripture.Store = (*Store)(nil)

// InstrumentStore returns s wrapped with tracing and metrics.
func InstrumentStore(s scripture.Store, m *Metrics) *Store {
	return &Store{Store: s, m: m}
}

// Unwrap returns the underlying store.
func (s *Store) Unwrap() scripture.Store { return s.Store }

func (s *Store) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := StartSpan(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, func(err error) {
		status := "ok"
		switch {
		case errors.Is(err, scripture.ErrNotFound):
			status = "not_found"
		case err != nil:
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.m.RecordStoreOp(ctx, op, status, time.Since(start))
		span.End()
	}
}

func (s *Store) ListTranslations(ctx context.Context) ([]scripture.Translation, error) {
	ctx, done := s.observe(ctx, "list_translations")
	ts, err := s.Store.ListTranslations(ctx)
	done(err)
	return ts, err
}

func (s *Store) TranslationByCode(ctx context.Context, code string) (scripture.Translation, error) {
	ctx, done := s.observe(ctx, "translation_by_code", attribute.String("translation", code))
	t, err := s.Store.TranslationByCode(ctx, code)
	done(err)
	return t, err
}

func (s *Store) ListBooks(ctx context.Context, translationID int64) ([]scripture.Book, error) {
	ctx, done := s.observe(ctx, "list_books", attribute.Int64("translation_id", translationID))
	bs, err := s.Store.ListBooks(ctx, translationID)
	done(err)
	return bs, err
}

func (s *Store) ResolveBookName(ctx context.Context, name string, translationID int64) (scripture.Book, error) {
	ctx, done := s.observe(ctx, "resolve_book", attribute.String("book", name))
	b, err := s.Store.ResolveBookName(ctx, name, translationID)
	done(err)
	return b, err
}

func (s *Store) GetPassage(ctx context.Context, ref scripture.Reference) (scripture.Passage, error) {
	ctx, done := s.observe(ctx, "get_passage", attribute.String("reference", ref.Key()))
	p, err := s.Store.GetPassage(ctx, ref)
	done(err)
	return p, err
}

func (s *Store) SearchScripture(ctx context.Context, query string, limit int) ([]scripture.Passage, error) {
	ctx, done := s.observe(ctx, "search", attribute.Int("limit", limit))
	ps, err := s.Store.SearchScripture(ctx, query, limit)
	done(err)
	return ps, err
}
