package server

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxUploadBytes caps a single document upload.
const maxUploadBytes = 100 << 20

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	list, err := s.Docs.List(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": list})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	slug := s.workspaceSlug(r.FormValue("workspace"))
	doc, err := s.Docs.Save(r.Context(), header.Filename, header.Header.Get("Content-Type"), data, slug)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleBackfillDocuments(w http.ResponseWriter, r *http.Request) {
	matched, err := s.Docs.Backfill(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"matched": matched})
}

func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	doc, rc, err := s.Docs.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	defer rc.Close()

	contentType := doc.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.OriginalName+`"`)
	io.Copy(w, rc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.Docs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
