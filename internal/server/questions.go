package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/late7/ai-doc-reader/internal/registry"
	"github.com/late7/ai-doc-reader/internal/store"
)

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Registry.ListQuestions(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title  string `json:"title"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.Registry.CreateQuestion(r.Context(), req.Title, req.Prompt)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var patch registry.QuestionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.Registry.UpdateQuestion(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRemoveQuestion(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Registry.RemoveQuestion(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReorderQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.Registry.ReorderQuestion(r.Context(), chi.URLParam(r, "id"), req.Position)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// workspaceSlug resolves the target workspace for a request, falling back to
// the configured default.
func (s *Server) workspaceSlug(requested string) string {
	if requested != "" {
		return requested
	}
	return s.DefaultSlug
}

func (s *Server) handleRunQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Workspace string `json:"workspace"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	id := chi.URLParam(r, "id")
	snap, err := s.Registry.ListQuestions(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	for _, q := range snap.Questions {
		if q.ID == id {
			answer := s.Runner.RunQuestion(r.Context(), s.workspaceSlug(req.Workspace), q)
			writeJSON(w, http.StatusOK, answer)
			return
		}
	}
	writeMappedError(w, store.ErrNotFound)
}

func (s *Server) handleRunAllQuestions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Workspace string `json:"workspace"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	answers, err := s.Runner.RunAllQuestions(r.Context(), s.workspaceSlug(req.Workspace))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answers": answers})
}
