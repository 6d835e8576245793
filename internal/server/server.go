package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/claude/tulog/internal/labels"
	"github.com/claude/tulog/internal/tracker"
	"github.com/go-chi/chi/v5"
)

// Tables hands out the exercise table of a user.
type Tables interface {
	Table(ctx context.Context, owner int) (*tracker.Table, error)
	Resync(ctx context.Context) int
}

// LabelSearcher returns normalized supplement labels for a query.
type LabelSearcher interface {
	SearchLabels(ctx context.Context, query string) ([]labels.Label, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	tables   Tables
	labels   LabelSearcher
	proxy    ProxyHandler
	mcp      http.Handler
	identity func(http.Handler) http.Handler
	log      *slog.Logger
	apiKey   string
	router   chi.Router
}

// ProxyHandler serves the public label and extraction proxies.
type ProxyHandler interface {
	http.Handler
	Extract(w http.ResponseWriter, r *http.Request)
}

// New creates a new Server with all routes configured. Requests are
// attributed to the dev identity until SetTailscale is called.
func New(tables Tables, labelSearch LabelSearcher, proxy ProxyHandler, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		tables:   tables,
		labels:   labelSearch,
		proxy:    proxy,
		identity: DevIdentity,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
	}
	s.routes()
	return s
}

// SetTailscale switches request identity to Tailscale WhoIs lookups.
func (s *Server) SetTailscale(whois WhoIser, users UserResolver) {
	s.identity = TailscaleIdentity(whois, users, s.log)
}

// SetMCP mounts an MCP transport at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.mcp = h
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))

	// Proxies are public; they carry their own CORS handling.
	s.router.Handle("/proxy", s.proxy)
	s.router.HandleFunc("/proxy/extract", s.proxy.Extract)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Group(func(r chi.Router) {
		r.Use(CORS)
		if s.apiKey != "" {
			r.Use(APIKeyAuth(s.apiKey))
		}
		r.Use(s.identify)

		r.Handle("/mcp", http.HandlerFunc(s.serveMCP))

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/me", s.handleMe)

			r.Get("/exercises", s.handleListExercises)
			r.Post("/exercises", s.handleAddExercise)
			r.Get("/exercises/{name}", s.handleGetExercise)
			r.Delete("/exercises/{name}", s.handleDeleteExercise)
			r.Post("/exercises/{name}/toggle", s.handleToggle)
			r.Put("/exercises/{name}/weight", s.handleWeight)
			r.Post("/exercises/{name}/rename", s.handleRename)

			r.Get("/timer", s.handleTimer)
			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handlePutSettings)
			r.Get("/onboarding", s.handleGetOnboarding)
			r.Post("/onboarding", s.handleMarkOnboarding)
			r.Get("/sync", s.handleSyncStatus)
			r.Post("/sync", s.handleResync)

			r.Get("/labels/search", s.handleLabelSearch)
		})
	})
}

// identify applies the current identity middleware at request time.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.identity(next).ServeHTTP(w, r)
	})
}

func (s *Server) serveMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "mcp is not enabled"})
		return
	}
	s.mcp.ServeHTTP(w, r)
}
