package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/lectern/internal/intent"
	"github.com/MrWong99/lectern/internal/transcript"
)

type transcriptRequest struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	IsFinal    *bool    `json:"is_final"`
}

// processTranscript serves POST /api/transcripts. It answers 200 with the
// emitted queue item, 204 when the fragment was dropped and 202 for interim
// fragments, which are not processed.
func (s *Server) processTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	conf := 1.0
	if req.Confidence != nil {
		conf = *req.Confidence
	}
	if conf < 0 || conf > 1 {
		writeError(w, http.StatusBadRequest, "confidence must be within [0, 1]")
		return
	}
	if req.IsFinal != nil && !*req.IsFinal {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	res, err := s.engine.Process(r.Context(), req.Text, conf)
	if err != nil {
		internalError(w, r, "process transcript", err)
		return
	}
	if res.Item == nil {
		w.Header().Set("X-Drop-Reason", string(res.Dropped))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, res.Item)
}

func (s *Server) resetEngine(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reset(r.Context()); err != nil {
		internalError(w, r, "reset engine", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsJSON struct {
	DefaultTranslation    string                `json:"default_translation"`
	Aggressiveness        intent.Aggressiveness `json:"aggressiveness"`
	CooldownSeconds       float64               `json:"cooldown_seconds"`
	ContextTimeoutSeconds float64               `json:"context_timeout_seconds"`
	DebounceMS            int64                 `json:"debounce_ms"`
}

func toSettingsJSON(st transcript.Settings) settingsJSON {
	return settingsJSON{
		DefaultTranslation:    st.DefaultTranslation,
		Aggressiveness:        st.Aggressiveness,
		CooldownSeconds:       st.Cooldown.Seconds(),
		ContextTimeoutSeconds: st.ContextTimeout.Seconds(),
		DebounceMS:            st.Debounce.Milliseconds(),
	}
}

// settingsPatch is a partial update; absent fields keep their value.
type settingsPatch struct {
	DefaultTranslation    *string                `json:"default_translation"`
	Aggressiveness        *intent.Aggressiveness `json:"aggressiveness"`
	CooldownSeconds       *float64               `json:"cooldown_seconds"`
	ContextTimeoutSeconds *float64               `json:"context_timeout_seconds"`
	DebounceMS            *int64                 `json:"debounce_ms"`
}

func (p settingsPatch) overrides() (transcript.Overrides, error) {
	var (
		o    transcript.Overrides
		errs []error
	)
	if p.DefaultTranslation != nil {
		code := strings.TrimSpace(*p.DefaultTranslation)
		if code == "" {
			errs = append(errs, errors.New("default_translation must not be empty"))
		}
		o.DefaultTranslation = &code
	}
	if p.Aggressiveness != nil {
		if !p.Aggressiveness.IsValid() {
			errs = append(errs, errors.New("aggressiveness must be conservative, balanced or responsive"))
		}
		o.Aggressiveness = p.Aggressiveness
	}
	seconds := func(name string, v *float64) *time.Duration {
		if v == nil {
			return nil
		}
		if *v < 0 {
			errs = append(errs, errors.New(name+" must not be negative"))
		}
		d := time.Duration(*v * float64(time.Second))
		return &d
	}
	o.Cooldown = seconds("cooldown_seconds", p.CooldownSeconds)
	o.ContextTimeout = seconds("context_timeout_seconds", p.ContextTimeoutSeconds)
	if p.DebounceMS != nil {
		if *p.DebounceMS < 0 {
			errs = append(errs, errors.New("debounce_ms must not be negative"))
		}
		d := time.Duration(*p.DebounceMS) * time.Millisecond
		o.Debounce = &d
	}
	return o, errors.Join(errs...)
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Settings(r.Context())
	if err != nil {
		internalError(w, r, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsJSON(st))
}

func (s *Server) patchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	o, err := patch.overrides()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.engine.Configure(r.Context(), o)
	if err != nil {
		internalError(w, r, "configure engine", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsJSON(st))
}

type profileJSON struct {
	ID                    string                `json:"id"`
	Name                  string                `json:"name"`
	WakePhrases           []string              `json:"wake_phrases"`
	IgnorePhrases         []string              `json:"ignore_phrases"`
	Aggressiveness        intent.Aggressiveness `json:"aggressiveness,omitempty"`
	ContextTimeoutSeconds float64               `json:"context_timeout_seconds,omitempty"`
	VerseStyle            transcript.VerseStyle `json:"verse_style,omitempty"`
	Active                bool                  `json:"active"`
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, active, err := s.engine.Profiles(r.Context())
	if err != nil {
		internalError(w, r, "list profiles", err)
		return
	}
	out := make([]profileJSON, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, profileJSON{
			ID:                    p.ID,
			Name:                  p.Name,
			WakePhrases:           nonNil(p.WakePhrases),
			IgnorePhrases:         nonNil(p.IgnorePhrases),
			Aggressiveness:        p.Aggressiveness,
			ContextTimeoutSeconds: p.ContextTimeout.Seconds(),
			VerseStyle:            p.VerseStyle,
			Active:                p.ID == active,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type activateRequest struct {
	ID string `json:"id"`
}

// activateProfile serves PUT /api/engine/profile. An empty id clears the
// active profile.
func (s *Server) activateProfile(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.engine.ActivateProfile(r.Context(), req.ID)
	switch {
	case errors.Is(err, ErrUnknownProfile):
		writeError(w, http.StatusNotFound, "profile not found")
	case err != nil:
		internalError(w, r, "activate profile", err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
