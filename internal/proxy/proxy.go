package proxy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/vision"
)

// maxRequestBody caps the extraction request body.
const maxRequestBody = 1 << 20

// LabelSource fetches raw supplement label payloads.
type LabelSource interface {
	Validate() error
	Search(ctx context.Context, query string) ([]byte, error)
	Label(ctx context.Context, id string) ([]byte, error)
}

// Extractor answers questions about an image.
type Extractor interface {
	Validate() error
	Ask(ctx context.Context, q vision.Question) ([]byte, error)
}

// Handler serves the label and image-extraction proxies. Upstream secrets
// are checked once, at construction, and never by request handling.
type Handler struct {
	labels    LabelSource
	extractor Extractor
	labelsErr error
	visionErr error
	log       *slog.Logger
}

// New creates a Handler and validates both upstream configurations.
func New(labels LabelSource, extractor Extractor, log *slog.Logger) *Handler {
	return &Handler{
		labels:    labels,
		extractor: extractor,
		labelsErr: labels.Validate(),
		visionErr: extractor.Validate(),
		log:       log,
	}
}

// ConfigErrors returns the startup configuration problems, if any.
func (h *Handler) ConfigErrors() []error {
	var errs []error
	if h.labelsErr != nil {
		errs = append(errs, h.labelsErr)
	}
	if h.visionErr != nil {
		errs = append(errs, h.visionErr)
	}
	return errs
}

// ServeHTTP dispatches /proxy: GET for labels, POST for extraction,
// OPTIONS for CORS preflight.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		h.handleLabels(w, r)
	case http.MethodPost:
		h.handleExtract(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// Extract serves the dedicated extraction endpoint, which only accepts POST.
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	case http.MethodPost:
		h.handleExtract(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleLabels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fetch func(context.Context) ([]byte, error)
	switch q.Get("type") {
	case "search":
		query := q.Get("q")
		if query == "" {
			writeError(w, http.StatusBadRequest, "missing q parameter")
			return
		}
		fetch = func(ctx context.Context) ([]byte, error) { return h.labels.Search(ctx, query) }
	case "label":
		id := q.Get("dsldId")
		if id == "" {
			writeError(w, http.StatusBadRequest, "missing dsldId parameter")
			return
		}
		fetch = func(ctx context.Context) ([]byte, error) { return h.labels.Label(ctx, id) }
	default:
		writeError(w, http.StatusBadRequest, "type must be search or label")
		return
	}

	if h.labelsErr != nil {
		h.log.Error("label proxy not configured", "error", h.labelsErr)
		writeError(w, http.StatusInternalServerError, "label service is not configured")
		return
	}

	body, err := fetch(r.Context())
	if err != nil {
		h.log.Error("label proxy upstream failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeRaw(w, body)
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	var q vision.Question
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := q.Validate(); err != nil {
		msg := err.Error()
		if tErr, ok := trackerr.As(err); ok {
			msg = tErr.Message
		}
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if h.visionErr != nil {
		h.log.Error("extraction proxy not configured", "error", h.visionErr)
		writeError(w, http.StatusInternalServerError, "vision service is not configured")
		return
	}

	body, err := h.extractor.Ask(r.Context(), q)
	if err != nil {
		h.log.Error("extraction proxy upstream failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeRaw(w, body)
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
