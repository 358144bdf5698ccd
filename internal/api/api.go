// Package api serves the HTTP interface used by the operator UI: scripture
// lookup, transcript ingestion, engine settings and profiles, the display
// queue and its websocket feed, health probes and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/lectern/internal/health"
	"github.com/MrWong99/lectern/internal/observe"
	"github.com/MrWong99/lectern/internal/queue"
	"github.com/MrWong99/lectern/internal/transcript"
	"github.com/MrWong99/lectern/pkg/scripture"
)

// ErrUnknownProfile is returned by [Engine.ActivateProfile] for an ID that
// is not configured.
var ErrUnknownProfile = errors.New("api: unknown profile")

// Engine is the serialized view of the transcript engine. Calls may come
// from many request goroutines; the implementation orders them.
type Engine interface {
	// Process runs one final transcript fragment. Emitted items are already
	// in the queue when it returns.
	Process(ctx context.Context, text string, sttConfidence float64) (transcript.Result, error)
	Reset(ctx context.Context) error
	Settings(ctx context.Context) (transcript.Settings, error)
	Configure(ctx context.Context, o transcript.Overrides) (transcript.Settings, error)

	// Profiles returns the configured profiles and the active profile ID,
	// which is empty when none is active.
	Profiles(ctx context.Context) ([]transcript.Profile, string, error)

	// ActivateProfile activates the profile with the given ID. An empty ID
	// deactivates the current profile.
	ActivateProfile(ctx context.Context, id string) error
}

// Server holds the API dependencies.
type Server struct {
	store   scripture.Store
	engine  Engine
	queue   *queue.Queue
	health  *health.Handler
	metrics *observe.Metrics
	scrape  http.Handler
	origins []string
	now     func() time.Time
}

// Option configures a [Server].
type Option func(*Server)

// WithAllowedOrigins restricts CORS and websocket origins. Empty allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithHealth replaces the default health handler, which only pings the store.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler replaces the /metrics handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// WithClock sets the time source for manual queue items.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New returns a Server.
func New(store scripture.Store, engine Engine, q *queue.Queue, opts ...Option) *Server {
	s := &Server{
		store:  store,
		engine: engine,
		queue:  q,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New(health.Ping("store", store))
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.scrape == nil {
		s.scrape = promhttp.Handler()
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         300,
	}))

	s.health.Register(r)
	r.Method(http.MethodGet, "/metrics", s.scrape)
	r.Get("/ws/queue", s.queueFeed)

	r.Route("/api", func(r chi.Router) {
		r.Get("/translations", s.listTranslations)
		r.Get("/translations/{id}/books", s.listBooks)
		r.Get("/passage", s.getPassage)
		r.Get("/search", s.search)

		r.Post("/transcripts", s.processTranscript)
		r.Post("/engine/reset", s.resetEngine)
		r.Get("/engine/settings", s.getSettings)
		r.Patch("/engine/settings", s.patchSettings)
		r.Put("/engine/profile", s.activateProfile)
		r.Get("/profiles", s.listProfiles)

		r.Get("/queue", s.listQueue)
		r.Post("/queue", s.addQueueItem)
		r.Patch("/queue/{id}", s.updateQueueItem)
		r.Delete("/queue/{id}", s.removeQueueItem)
	})
	return r
}

// internalError logs err and answers 500 without leaking the cause.
func internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	observe.Logger(r.Context()).Error("api: "+op, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func logger(r *http.Request) *slog.Logger { return observe.Logger(r.Context()) }
