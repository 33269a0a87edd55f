package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pbaille/localrename/internal/alias"
	"github.com/pbaille/localrename/internal/domain"
	"github.com/pbaille/localrename/internal/plugin"
	"github.com/pbaille/localrename/internal/scanner"
	"github.com/pbaille/localrename/internal/watcher"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Settings is the alias surface the API drives
type Settings interface {
	AddAlias(ctx context.Context, id, label string) (domain.AliasEntry, error)
	RemoveAlias(ctx context.Context, id string) error
	Aliases(ctx context.Context) ([]domain.AliasEntry, error)
	Rescan(ctx context.Context) (scanner.Report, error)
	WatcherState(ctx context.Context) (watcher.State, error)
}

// Renderer writes the current host document
type Renderer interface {
	Render(ctx context.Context, w io.Writer) error
}

// Server handles HTTP requests for the alias settings API
type Server struct {
	settings Settings
	doc      Renderer
	addr     string
	logger   *slog.Logger
}

// New creates a new API server. doc may be nil.
func New(settings Settings, doc Renderer, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{settings: settings, doc: doc, addr: addr, logger: logger}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Aliases
	mux.HandleFunc("GET /aliases", s.listAliases)
	mux.HandleFunc("POST /aliases", s.addAlias)
	mux.HandleFunc("PUT /aliases/{id}", s.putAlias)
	mux.HandleFunc("DELETE /aliases/{id}", s.deleteAlias)

	// Scans
	mux.HandleFunc("POST /rescan", s.rescan)

	// Rendered host document
	mux.HandleFunc("GET /document", s.document)

	// Health check and metrics
	mux.HandleFunc("GET /health", s.health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return withCORS(mux)
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	state, err := s.settings.WatcherState(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "watcher": state.String()})
}

// AliasRequest is the request body for adding or replacing an alias
type AliasRequest struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ReportResponse is the response for a manual rescan
type ReportResponse struct {
	Examined int `json:"examined"`
	Resolved int `json:"resolved"`
	Renamed  int `json:"renamed"`
	Restored int `json:"restored"`
}

func (s *Server) listAliases(w http.ResponseWriter, r *http.Request) {
	entries, err := s.settings.Aliases(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AliasEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"aliases": entries,
		"count":   len(entries),
	})
}

func (s *Server) addAlias(w http.ResponseWriter, r *http.Request) {
	var req AliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.storeAlias(w, r, req.ID, req.Label, http.StatusCreated)
}

func (s *Server) putAlias(w http.ResponseWriter, r *http.Request) {
	var req AliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.storeAlias(w, r, r.PathValue("id"), req.Label, http.StatusOK)
}

func (s *Server) storeAlias(w http.ResponseWriter, r *http.Request, id, label string, status int) {
	entry, err := s.settings.AddAlias(r.Context(), id, label)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, status, entry)
}

func (s *Server) deleteAlias(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.RemoveAlias(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rescan(w http.ResponseWriter, r *http.Request) {
	rep, err := s.settings.Rescan(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReportResponse{
		Examined: rep.Examined,
		Resolved: rep.Resolved,
		Renamed:  rep.Renamed,
		Restored: rep.Restored,
	})
}

func (s *Server) document(w http.ResponseWriter, r *http.Request) {
	if s.doc == nil {
		writeError(w, http.StatusNotFound, "no document")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.doc.Render(r.Context(), w); err != nil {
		s.logger.Error("render document", "error", err)
	}
}

// fail maps domain errors onto status codes
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alias.ErrInvalidAlias):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, alias.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, plugin.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
