package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/MrWong99/lectern/internal/queue"
	"github.com/MrWong99/lectern/pkg/scripture"
)

// feedWriteTimeout bounds one websocket write to a client.
const feedWriteTimeout = 5 * time.Second

func (s *Server) listQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.List())
}

type addItemRequest struct {
	Ref         string `json:"ref"`
	Translation string `json:"translation"`
}

// addQueueItem serves POST /api/queue: the operator queues a passage by
// hand.
func (s *Server) addQueueItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ref, ok := scripture.ParseReference(req.Ref, strings.TrimSpace(req.Translation))
	if !ok {
		writeError(w, http.StatusBadRequest, "reference not recognised")
		return
	}
	p, err := s.store.GetPassage(r.Context(), ref)
	switch {
	case errors.Is(err, scripture.ErrNotFound):
		writeError(w, http.StatusNotFound, "passage not found")
		return
	case err != nil:
		internalError(w, r, "add queue item", err)
		return
	}
	item := s.queue.Add(queue.NewManualItem(p, s.now()))
	writeJSON(w, http.StatusCreated, item)
}

type statusRequest struct {
	Status queue.Status `json:"status"`
}

func (s *Server) updateQueueItem(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := s.queue.UpdateStatus(chi.URLParam(r, "id"), req.Status)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "queue item not found")
	case errors.Is(err, queue.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		internalError(w, r, "update queue item", err)
	default:
		writeJSON(w, http.StatusOK, item)
	}
}

func (s *Server) removeQueueItem(w http.ResponseWriter, r *http.Request) {
	err := s.queue.Remove(chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "queue item not found")
	case err != nil:
		internalError(w, r, "remove queue item", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// queueFeed streams queue events to a websocket client as JSON text frames.
// A client that cannot keep up is disconnected by the queue and closed here
// with a policy violation.
func (s *Server) queueFeed(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{InsecureSkipVerify: len(s.origins) == 0}
	if !opts.InsecureSkipVerify {
		opts.OriginPatterns = originHosts(s.origins)
	}
	// Subscribe before the handshake completes so no event is missed between
	// the upgrade and the first read.
	events, cancel := s.queue.Subscribe()
	defer cancel()

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		logger(r).Warn("api: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	s.metrics.Subscribers.Add(r.Context(), 1)
	defer s.metrics.Subscribers.Add(context.WithoutCancel(r.Context()), -1)

	// The feed is one-way; CloseRead discards client frames and cancels ctx
	// when the client goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, feedWriteTimeout)
			err := wsjson.Write(wctx, conn, ev)
			wcancel()
			if err != nil {
				logger(r).Debug("api: queue feed write failed", "err", err)
				return
			}
		}
	}
}

// originHosts strips the scheme from CORS origins, since websocket origin
// patterns match hosts.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if i := strings.Index(o, "://"); i >= 0 {
			o = o[i+3:]
		}
		out = append(out, o)
	}
	return out
}
