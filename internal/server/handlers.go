package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/models"
	"github.com/claude/tulog/internal/tracker"
	"github.com/go-chi/chi/v5"
)

const maxBody = 64 << 10

// table resolves the caller's exercise table, writing an error on failure.
func (s *Server) table(w http.ResponseWriter, r *http.Request) (*tracker.Table, bool) {
	t, err := s.tables.Table(r.Context(), userIDFromContext(r))
	if err != nil {
		s.log.Error("loading table", "user", userIDFromContext(r), "error", err)
		writeError(w, err)
		return nil, false
	}
	return t, true
}

// exerciseName returns the {name} URL parameter, unescaped when the
// request path carried escaped characters such as %2F.
func exerciseName(r *http.Request) string {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.View())
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	name := exerciseName(r)
	row, found := t.Row(name)
	if !found {
		writeError(w, trackerr.NewNotFound(name))
		return
	}
	writeJSON(w, http.StatusOK, row)
}

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	ex, err := t.OnAddExercise(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	row, _ := t.Row(ex.Name)
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleDeleteExercise(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	name := exerciseName(r)
	// A delete the backend rejects stays pending and shows up in /sync.
	if err := t.OnDeleteExercise(r.Context(), name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	out, err := t.OnStartStop(r.Context(), exerciseName(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type weightRequest struct {
	Weight string `json:"weight"`
}

func (s *Server) handleWeight(w http.ResponseWriter, r *http.Request) {
	var req weightRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	name := exerciseName(r)
	if err := t.OnWeightChange(name, req.Weight); err != nil {
		writeError(w, err)
		return
	}
	row, _ := t.Row(name)
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	if err := t.OnRenameExercise(r.Context(), exerciseName(r), req.Name); err != nil {
		writeError(w, err)
		return
	}
	row, _ := t.Row(strings.TrimSpace(req.Name))
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleTimer(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t.TimerView())
}

type settingsResponse struct {
	models.TimerSettings
	AllowedThresholds []int `json:"allowed_thresholds"`
	Synced            bool  `json:"synced"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		TimerSettings:     t.Settings().TimerSettings(),
		AllowedThresholds: models.AllowedThresholds,
		Synced:            true,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	next := t.Settings().TimerSettings()
	if !decodeBody(w, r, &next) {
		return
	}
	err := t.Settings().Update(r.Context(), next)
	if trackerr.Is(err, trackerr.ErrInvalidRequest) {
		writeError(w, err)
		return
	}
	// Applied in memory even when persisting failed.
	writeJSON(w, http.StatusOK, settingsResponse{
		TimerSettings:     t.Settings().TimerSettings(),
		AllowedThresholds: models.AllowedThresholds,
		Synced:            err == nil,
	})
}

func (s *Server) handleGetOnboarding(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	seen, err := t.Settings().OnboardingSeen(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"seen": seen})
}

func (s *Server) handleMarkOnboarding(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	if err := t.Settings().MarkOnboardingSeen(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"seen": true})
}

type syncStatus struct {
	Pending  []string          `json:"pending"`
	Warnings []tracker.Warning `json:"warnings"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, currentSync(t))
}

func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	t, ok := s.table(w, r)
	if !ok {
		return
	}
	t.Resync(r.Context())
	writeJSON(w, http.StatusOK, currentSync(t))
}

func currentSync(t *tracker.Table) syncStatus {
	st := syncStatus{Pending: []string{}, Warnings: t.Warnings()}
	for _, row := range t.View() {
		if row.Pending {
			st.Pending = append(st.Pending, row.Name)
		}
	}
	if st.Warnings == nil {
		st.Warnings = []tracker.Warning{}
	}
	return st
}

func (s *Server) handleLabelSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "q parameter required"})
		return
	}
	found, err := s.labels.SearchLabels(r.Context(), q)
	if err != nil {
		s.log.Error("label search", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a TrackerError to its status code. Anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	tErr, ok := trackerr.As(err)
	if !ok {
		tErr = trackerr.NewInternal(err)
	}
	body := map[string]any{"error": tErr.Message, "code": tErr.Code}
	if len(tErr.Details) > 0 {
		body["details"] = tErr.Details
	}
	writeJSON(w, tErr.Status, body)
}
