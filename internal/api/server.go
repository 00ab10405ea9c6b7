// Package api exposes the synchronizer's status and controls over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"expvar"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/catalog"
	"github.com/ajitpratap0/atlas-catalog-sync/internal/syncer"
)

// Syncer is the part of the synchronizer the server drives.
type Syncer interface {
	Status() syncer.Status
	FullSync(ctx context.Context) (*syncer.Report, error)
}

// Server is an HTTP server for health, status and on-demand syncs.
type Server struct {
	syncer    Syncer
	catalog   catalog.Client
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(sy Syncer, cat catalog.Client, logger *slog.Logger, authToken string) *Server {
	return &Server{
		syncer:    sy,
		catalog:   cat,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check and counters, no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /debug/vars", expvar.Handler())

	mux.HandleFunc("GET /v1/status", s.auth(s.handleStatus))
	mux.HandleFunc("POST /v1/sync", s.auth(s.handleSync))
	mux.HandleFunc("GET /v1/entries", s.auth(s.handleEntries))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.syncer.Status())
}

// handleSync runs a full sync and returns its report. It waits for any
// cycle already in progress.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.syncer.FullSync(r.Context())
	if err != nil {
		s.logger.Error("on-demand sync failed", "error", err)
		var se *syncer.StageError
		if errors.As(err, &se) {
			s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error(), "stage": string(se.Stage)})
			return
		}
		s.writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// entriesResponse is returned by GET /v1/entries.
type entriesResponse struct {
	Query   string   `json:"query"`
	Entries []string `json:"entries"`
}

// handleEntries searches published entries, e.g. /v1/entries?q=type%3Dtable.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	q, err := catalog.ParseQuery(r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	locators, err := s.catalog.SearchByQuery(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to search entries", "query", q.String(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to search entries")
		return
	}
	if locators == nil {
		locators = []string{}
	}
	s.writeJSON(w, http.StatusOK, entriesResponse{Query: q.String(), Entries: locators})
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
