package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/models"
	"github.com/claude/tulog/internal/tracker"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by escaped path. Verifies the HTTP client sends correct paths and headers.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.EscapedPath()]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.EscapedPath())
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

func TestHTTPClientListExercises(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/exercises": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-API-Key"); got != "secret" {
				t.Errorf("X-API-Key = %q, want secret", got)
			}
			writeTestJSON(t, w, []tracker.Row{
				{Name: "Leg Press", Sessions: []models.Session{{Weight: 80, TimeUnderLoad: 45}}, PreviousDuration: 45},
			})
		},
	})
	defer ts.Close()

	rows, err := NewHTTPClient(ts.URL+"/", "secret").ListExercises(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "Leg Press" || rows[0].PreviousDuration != 45 {
		t.Errorf("rows = %+v", rows)
	}
}

// TestHTTPClientGetExerciseEscapesName verifies names with spaces and
// slashes reach the server as a single path segment.
func TestHTTPClientGetExerciseEscapesName(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/exercises/Leg%20Press%2F45": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-API-Key") != "" {
				t.Error("X-API-Key sent without a configured key")
			}
			writeTestJSON(t, w, tracker.Row{Name: "Leg Press/45"})
		},
	})
	defer ts.Close()

	row, err := NewHTTPClient(ts.URL, "").GetExercise(context.Background(), 1, "Leg Press/45")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Name != "Leg Press/45" {
		t.Errorf("name = %q", row.Name)
	}
}

func TestHTTPClientTimerStatus(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/timer": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, tracker.TimerView{State: "running", Exercise: "Rowing", Elapsed: 5})
		},
	})
	defer ts.Close()

	view, err := NewHTTPClient(ts.URL, "").TimerStatus(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.State != "running" || view.Elapsed != 5 {
		t.Errorf("view = %+v", view)
	}
}

// TestHTTPClientErrors verifies that non-200 responses become typed errors.
func TestHTTPClientErrors(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/exercises/Squat": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		},
		"/api/v1/timer": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
	})
	defer ts.Close()

	c := NewHTTPClient(ts.URL, "")
	_, err := c.GetExercise(context.Background(), 1, "Squat")
	if !trackerr.Is(err, trackerr.ErrNotFound) {
		t.Errorf("GetExercise error = %v, want NOT_FOUND", err)
	}
	_, err = c.TimerStatus(context.Background(), 1)
	if !trackerr.Is(err, trackerr.ErrServerError) {
		t.Errorf("TimerStatus error = %v, want SERVER_ERROR", err)
	}
}

// TestHTTPClientUnreachable verifies transport failures are classified.
func TestHTTPClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewHTTPClient(url, "").ListExercises(context.Background(), 1)
	if !trackerr.Is(err, trackerr.ErrNetworkUnavailable) {
		t.Errorf("error = %v, want NETWORK_UNAVAILABLE", err)
	}
}
