package proxy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/vision"
)

type fakeLabels struct {
	configErr error
	err       error
	calls     int
	lastQuery string
	lastID    string
}

func (f *fakeLabels) Validate() error { return f.configErr }

func (f *fakeLabels) Search(_ context.Context, q string) ([]byte, error) {
	f.calls++
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"hits":[{"_id":"1"}]}`), nil
}

func (f *fakeLabels) Label(_ context.Context, id string) ([]byte, error) {
	f.calls++
	f.lastID = id
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"id":1,"fullName":"Fish Oil"}`), nil
}

type fakeExtractor struct {
	configErr error
	err       error
	calls     int
	last      vision.Question
}

func (f *fakeExtractor) Validate() error { return f.configErr }

func (f *fakeExtractor) Ask(_ context.Context, q vision.Question) ([]byte, error) {
	f.calls++
	f.last = q
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"answer":"42"}`), nil
}

func newHandler(l *fakeLabels, e *fakeExtractor) *Handler {
	return New(l, e, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return resp["error"]
}

func TestLabelProxy(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"search", "/proxy?type=search&q=fish+oil", http.StatusOK, `{"hits":[{"_id":"1"}]}`},
		{"label", "/proxy?type=label&dsldId=1", http.StatusOK, `{"id":1,"fullName":"Fish Oil"}`},
		{"missing type", "/proxy?q=x", http.StatusBadRequest, ""},
		{"bad type", "/proxy?type=barcode&q=x", http.StatusBadRequest, ""},
		{"missing q", "/proxy?type=search", http.StatusBadRequest, ""},
		{"missing dsldId", "/proxy?type=label", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(&fakeLabels{}, &fakeExtractor{})
			w := do(h, http.MethodGet, tt.target, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %s, want verbatim %s", w.Body.String(), tt.wantBody)
			}
			if tt.wantStatus != http.StatusOK && errorBody(t, w) == "" {
				t.Error("expected an error message")
			}
		})
	}
}

func TestLabelProxyMissingSecretSkipsNetwork(t *testing.T) {
	labels := &fakeLabels{configErr: trackerr.NewConfiguration("proxy.labels_api_key", "not set")}
	h := newHandler(labels, &fakeExtractor{})
	if len(h.ConfigErrors()) != 1 {
		t.Fatalf("ConfigErrors = %v", h.ConfigErrors())
	}

	w := do(h, http.MethodGet, "/proxy?type=search&q=x", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if labels.calls != 0 {
		t.Errorf("upstream called %d times without a key", labels.calls)
	}
}

func TestLabelProxyUpstreamFailure(t *testing.T) {
	labels := &fakeLabels{err: trackerr.NewServerError("label service", 502, "bad gateway")}
	h := newHandler(labels, &fakeExtractor{})
	w := do(h, http.MethodGet, "/proxy?type=label&dsldId=9", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if labels.lastID != "9" {
		t.Errorf("lastID = %q", labels.lastID)
	}
}

func TestExtractProxy(t *testing.T) {
	ext := &fakeExtractor{}
	h := newHandler(&fakeLabels{}, ext)

	w := do(h, http.MethodPost, "/proxy", `{"image_url":"https://x/a.png","question":"dose?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != `{"answer":"42"}` {
		t.Errorf("body = %s", w.Body.String())
	}
	if ext.last.ImageURL != "https://x/a.png" || ext.last.Question != "dose?" {
		t.Errorf("forwarded %+v", ext.last)
	}

	for _, body := range []string{`{"image_url":"u"}`, `{"question":"q"}`, `not json`} {
		w := do(h, http.MethodPost, "/proxy", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, w.Code)
		}
	}
}

func TestExtractEndpointMethods(t *testing.T) {
	h := newHandler(&fakeLabels{}, &fakeExtractor{})
	extract := http.HandlerFunc(h.Extract)

	w := do(extract, http.MethodOptions, "/proxy/extract", "")
	if w.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		if w := do(extract, m, "/proxy/extract", ""); w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s status = %d, want 405", m, w.Code)
		}
	}

	if w := do(h, http.MethodPut, "/proxy", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT /proxy status = %d, want 405", w.Code)
	}
	if w := do(h, http.MethodOptions, "/proxy", ""); w.Code != http.StatusOK {
		t.Errorf("OPTIONS /proxy status = %d, want 200", w.Code)
	}
}

func TestExtractProxyFailures(t *testing.T) {
	ext := &fakeExtractor{configErr: trackerr.NewConfiguration("proxy.vision_api_key", "not set")}
	h := newHandler(&fakeLabels{}, ext)
	w := do(h, http.MethodPost, "/proxy", `{"image_url":"u","question":"q"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("missing secret status = %d, want 500", w.Code)
	}
	if ext.calls != 0 {
		t.Errorf("upstream called without a key")
	}

	ext = &fakeExtractor{err: trackerr.NewNetworkUnavailable("vision service", io.ErrUnexpectedEOF)}
	h = newHandler(&fakeLabels{}, ext)
	w = do(h, http.MethodPost, "/proxy", `{"image_url":"u","question":"q"}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("upstream failure status = %d, want 500", w.Code)
	}
}
