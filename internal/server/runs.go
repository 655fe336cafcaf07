package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/late7/ai-doc-reader/internal/export"
	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/prompt"
	"github.com/late7/ai-doc-reader/internal/store"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Backend     string   `json:"backend"`
		Workspace   string   `json:"workspace"`
		Subject     string   `json:"subject"`
		Mode        string   `json:"mode"`
		DocumentIDs []string `json:"document_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, err := prompt.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var run *model.Run
	switch model.RunBackend(req.Backend) {
	case model.BackendDirectUpload:
		paths, perr := s.Docs.LocalPaths(r.Context(), req.DocumentIDs)
		if perr != nil {
			writeMappedError(w, perr)
			return
		}
		if len(paths) == 0 {
			writeError(w, http.StatusBadRequest, "document_ids must name at least one stored document")
			return
		}
		run, err = s.Runner.RunDirect(r.Context(), req.Subject, mode, paths)
	case model.BackendWorkspace, "":
		run, err = s.Runner.RunWorkspace(r.Context(), s.workspaceSlug(req.Workspace), mode)
	default:
		writeError(w, http.StatusBadRequest, "unknown backend "+strconv.Quote(req.Backend))
		return
	}
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{Workspace: r.URL.Query().Get("workspace")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	runs, err := s.Runner.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Runner.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleExportRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Runner.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if run.Result == nil {
		writeError(w, http.StatusConflict, "run has no result to export")
		return
	}

	name := run.Result.CompanyName()
	if name == "" {
		name = "analysis"
	}

	switch format := r.URL.Query().Get("format"); format {
	case "xlsx":
		snap, err := s.Registry.ListFigures(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(name, "xlsx")+`"`)
		if err := export.WriteXLSX(w, *run.Result, snap.Figures); err != nil {
			writeMappedError(w, err)
		}
	case "json", "":
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(name, "json")+`"`)
		if err := export.WriteJSON(w, *run.Result); err != nil {
			writeMappedError(w, err)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown export format "+strconv.Quote(format))
	}
}
