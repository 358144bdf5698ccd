package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/lectern/pkg/scripture"
)

func (s *Server) listTranslations(w http.ResponseWriter, r *http.Request) {
	ts, err := s.store.ListTranslations(r.Context())
	if err != nil {
		internalError(w, r, "list translations", err)
		return
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "translation id must be an integer")
		return
	}
	books, err := s.store.ListBooks(r.Context(), id)
	if err != nil {
		internalError(w, r, "list books", err)
		return
	}
	if len(books) == 0 {
		writeError(w, http.StatusNotFound, "translation not found")
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// getPassage serves GET /api/passage?ref=John+3:16&translation=KJV.
func (s *Server) getPassage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref, ok := scripture.ParseReference(q.Get("ref"), strings.TrimSpace(q.Get("translation")))
	if !ok {
		writeError(w, http.StatusNotFound, "reference not recognised")
		return
	}
	p, err := s.store.GetPassage(r.Context(), ref)
	switch {
	case errors.Is(err, scripture.ErrNotFound):
		writeError(w, http.StatusNotFound, "passage not found")
	case err != nil:
		internalError(w, r, "get passage", err)
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

// search serves GET /api/search?q=&limit=. A blank query yields [].
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	ps, err := s.store.SearchScripture(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		internalError(w, r, "search", err)
		return
	}
	if ps == nil {
		ps = []scripture.Passage{}
	}
	writeJSON(w, http.StatusOK, ps)
}
