package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/late7/ai-doc-reader/internal/export"
	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/registry"
)

// maxImportBytes caps uploaded registry spreadsheets.
const maxImportBytes = 10 << 20

func (s *Server) handleListFigures(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Registry.ListFigures(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReplaceFigures(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Revision int64          `json:"revision"`
		Figures  []model.Figure `json:"figures"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.Registry.ReplaceFigures(r.Context(), req.Revision, req.Figures)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCreateFigure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.Registry.CreateFigure(r.Context(), req.Name, req.Description)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleUpdateFigure(w http.ResponseWriter, r *http.Request) {
	var patch registry.FigurePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.Registry.UpdateFigure(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRemoveFigure(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Registry.RemoveFigure(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReorderFigure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int `json:"position"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	snap, err := s.Registry.ReorderFigure(r.Context(), chi.URLParam(r, "id"), req.Position)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleImportFigures(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	rows, err := export.ReadFigureRowsFrom(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, res, err := s.Registry.ImportFigures(r.Context(), rows)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": snap,
		"import":   res,
	})
}

func (s *Server) handleExportFigures(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Registry.ListFigures(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename("figures", "xlsx")+`"`)
	if err := export.WriteFigureXLSX(w, snap.Figures); err != nil {
		writeMappedError(w, err)
	}
}
