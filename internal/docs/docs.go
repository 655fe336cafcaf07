// Package docs manages uploaded files: the locally cached bytes, the
// metadata record joining them to the workspace backend's parsed-document
// identifiers, and the embedding bookkeeping around upload and delete.
package docs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/store"
	"github.com/late7/ai-doc-reader/pkg/workspace"
)

// Manager coordinates the upload directory, the metadata store and the
// workspace backend.
type Manager struct {
	Store     store.Store
	Workspace workspace.Client
	Dir       string
}

// Save caches the uploaded bytes locally, records metadata, and pushes the
// file to the workspace backend for parsing. Backend identifiers are filled
// in when the push succeeds; a push failure leaves the record behind for a
// later backfill rather than failing the upload.
func (m *Manager) Save(ctx context.Context, originalName, mimeType string, data []byte, embedSlug string) (*model.Document, error) {
	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "docs: create uploads dir")
	}

	storedName := uuid.New().String() + filepath.Ext(originalName)
	if err := os.WriteFile(filepath.Join(m.Dir, storedName), data, 0o644); err != nil {
		return nil, eris.Wrap(err, "docs: write upload")
	}

	doc := model.Document{
		ID:           uuid.New().String(),
		OriginalName: originalName,
		StoredName:   storedName,
		MimeType:     mimeType,
		SavedAt:      time.Now().UTC(),
	}
	if err := m.Store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	rec, err := m.Workspace.UploadDocument(ctx, originalName, data)
	if err != nil {
		zap.L().Warn("docs: workspace upload failed, identifiers will backfill later",
			zap.String("document", doc.ID),
			zap.Error(err),
		)
		return m.Store.GetDocument(ctx, doc.ID)
	}

	refs := model.Document{
		DocFilename: rec.Name,
		DocPath:     rec.Location,
		DocID:       rec.ID,
	}
	if err := m.Store.UpdateDocumentRefs(ctx, doc.ID, refs); err != nil {
		return nil, err
	}

	if embedSlug != "" {
		if err := m.Workspace.UpdateEmbeddings(ctx, embedSlug, []string{rec.Location}, nil); err != nil {
			zap.L().Warn("docs: embed after upload failed",
				zap.String("workspace", embedSlug),
				zap.Error(err),
			)
		}
	}

	return m.Store.GetDocument(ctx, doc.ID)
}

// List returns all document metadata records.
func (m *Manager) List(ctx context.Context) ([]model.Document, error) {
	return m.Store.ListDocuments(ctx)
}

// Get returns one document's metadata.
func (m *Manager) Get(ctx context.Context, id string) (*model.Document, error) {
	return m.Store.GetDocument(ctx, id)
}

// Open returns the metadata and a reader over the locally cached bytes.
func (m *Manager) Open(ctx context.Context, id string) (*model.Document, io.ReadCloser, error) {
	doc, err := m.Store.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(m.Dir, doc.StoredName))
	if err != nil {
		return nil, nil, eris.Wrapf(err, "docs: open %s", doc.StoredName)
	}
	return doc, f, nil
}

// LocalPath returns the on-disk path of a document's cached bytes.
func (m *Manager) LocalPath(doc *model.Document) string {
	return filepath.Join(m.Dir, doc.StoredName)
}

// LocalPaths resolves document ids to on-disk paths, for direct-upload runs.
func (m *Manager) LocalPaths(ctx context.Context, ids []string) ([]string, error) {
	paths := make([]string, 0, len(ids))
	for _, id := range ids {
		doc, err := m.Store.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		paths = append(paths, m.LocalPath(doc))
	}
	return paths, nil
}

// Delete removes the workspace copy when one is known, then the local bytes,
// then the metadata record.
func (m *Manager) Delete(ctx context.Context, id string) error {
	doc, err := m.Store.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	if doc.DocPath != "" {
		if err := m.Workspace.RemoveDocuments(ctx, []string{doc.DocPath}); err != nil {
			zap.L().Warn("docs: workspace removal failed, continuing with local delete",
				zap.String("document", id),
				zap.Error(err),
			)
		}
	}

	if err := os.Remove(filepath.Join(m.Dir, doc.StoredName)); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "docs: remove %s", doc.StoredName)
	}

	return m.Store.DeleteDocument(ctx, id)
}

// Backfill reconciles records that are missing workspace identifiers against
// the backend's document list, matching on original filename. Identifiers
// assigned after a failed push at upload time are discovered here.
func (m *Manager) Backfill(ctx context.Context) (int, error) {
	local, err := m.Store.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}

	var missing []model.Document
	for _, doc := range local {
		if doc.DocPath == "" {
			missing = append(missing, doc)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	remote, err := m.Workspace.ListDocuments(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "docs: backfill list")
	}
	byTitle := make(map[string]workspace.DocumentRecord, len(remote))
	for _, r := range remote {
		byTitle[r.Title] = r
	}

	updated := 0
	for _, doc := range missing {
		rec, ok := byTitle[doc.OriginalName]
		if !ok {
			continue
		}
		refs := model.Document{
			DocFilename: rec.Name,
			DocPath:     rec.Location,
			DocID:       rec.ID,
		}
		if err := m.Store.UpdateDocumentRefs(ctx, doc.ID, refs); err != nil {
			return updated, err
		}
		updated++
	}

	if updated > 0 {
		zap.L().Info("docs: backfilled workspace identifiers", zap.Int("count", updated))
	}
	return updated, nil
}
