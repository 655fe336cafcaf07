// Package server exposes the dashboard HTTP API: registries, documents,
// analysis runs and exports.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/late7/ai-doc-reader/internal/analyze"
	"github.com/late7/ai-doc-reader/internal/docs"
	"github.com/late7/ai-doc-reader/internal/prompt"
	"github.com/late7/ai-doc-reader/internal/registry"
	"github.com/late7/ai-doc-reader/internal/store"
)

// Server holds the dependencies behind the dashboard API. Everything is
// injected at startup; there is no package-level state.
type Server struct {
	Registry *registry.Registry
	Runner   *analyze.Runner
	Docs     *docs.Manager
	Sessions *SessionStore

	Password       string
	DefaultSlug    string
	AllowedOrigins []string
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)

		r.Post("/api/logout", s.handleLogout)

		r.Route("/api/figures", func(r chi.Router) {
			r.Get("/", s.handleListFigures)
			r.Put("/", s.handleReplaceFigures)
			r.Post("/", s.handleCreateFigure)
			r.Post("/import", s.handleImportFigures)
			r.Get("/export", s.handleExportFigures)
			r.Patch("/{id}", s.handleUpdateFigure)
			r.Delete("/{id}", s.handleRemoveFigure)
			r.Post("/{id}/reorder", s.handleReorderFigure)
		})

		r.Route("/api/questions", func(r chi.Router) {
			r.Get("/", s.handleListQuestions)
			r.Post("/", s.handleCreateQuestion)
			r.Post("/run-all", s.handleRunAllQuestions)
			r.Patch("/{id}", s.handleUpdateQuestion)
			r.Delete("/{id}", s.handleRemoveQuestion)
			r.Post("/{id}/reorder", s.handleReorderQuestion)
			r.Post("/{id}/run", s.handleRunQuestion)
		})

		r.Route("/api/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleUploadDocument)
			r.Post("/backfill", s.handleBackfillDocuments)
			r.Get("/{id}/download", s.handleDownloadDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
		})

		r.Post("/api/analyze", s.handleAnalyze)
		r.Route("/api/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Get("/{id}/export", s.handleExportRun)
		})
	})

	return r
}

// requireSession gates the API behind a valid bearer token.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || !s.Sessions.Valid(token) {
			writeError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.Password == "" || req.Password != s.Password {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": s.Sessions.Create()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.Destroy(bearerToken(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeMappedError translates domain errors into HTTP statuses: validation
// failures and empty-registry configuration errors are the caller's fault,
// revision conflicts are concurrent edits, everything else from an adapter
// surfaces as a bad gateway.
func writeMappedError(w http.ResponseWriter, err error) {
	var ve *registry.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, prompt.ErrNoFigures):
		writeError(w, http.StatusBadRequest, "no figures configured for this analysis mode")
	case errors.Is(err, store.ErrRevisionConflict):
		writeError(w, http.StatusConflict, "registry was modified by another editor, reload and retry")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		zap.L().Error("server: request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
