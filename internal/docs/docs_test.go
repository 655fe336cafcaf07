package docs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/late7/ai-doc-reader/internal/store"
	"github.com/late7/ai-doc-reader/pkg/workspace"
)

// fakeWorkspace is a scriptable workspace backend.
type fakeWorkspace struct {
	workspace.Client

	uploadRec  *workspace.DocumentRecord
	uploadErr  error
	listDocs   []workspace.DocumentRecord
	embedded   [][]string
	removed    [][]string
	embedErr   error
	uploadedAs []string
}

func (f *fakeWorkspace) UploadDocument(_ context.Context, filename string, _ []byte) (*workspace.DocumentRecord, error) {
	f.uploadedAs = append(f.uploadedAs, filename)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadRec, nil
}

func (f *fakeWorkspace) ListDocuments(_ context.Context) ([]workspace.DocumentRecord, error) {
	return f.listDocs, nil
}

func (f *fakeWorkspace) RemoveDocuments(_ context.Context, locations []string) error {
	f.removed = append(f.removed, locations)
	return nil
}

func (f *fakeWorkspace) UpdateEmbeddings(_ context.Context, _ string, adds, _ []string) error {
	f.embedded = append(f.embedded, adds)
	return f.embedErr
}

func newTestManager(t *testing.T) (*Manager, *fakeWorkspace) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	ws := &fakeWorkspace{}
	return &Manager{Store: st, Workspace: ws, Dir: t.TempDir()}, ws
}

func TestSave_PushesAndEmbeds(t *testing.T) {
	m, ws := newTestManager(t)
	ws.uploadRec = &workspace.DocumentRecord{
		ID:       "ws-doc-9",
		Name:     "annual-report.pdf-abc.json",
		Title:    "annual-report.pdf",
		Location: "custom-documents/annual-report.pdf-abc.json",
	}

	doc, err := m.Save(context.Background(), "annual-report.pdf", "application/pdf", []byte("%PDF-1.4"), "acme")
	require.NoError(t, err)

	assert.Equal(t, "annual-report.pdf", doc.OriginalName)
	assert.Equal(t, "ws-doc-9", doc.DocID)
	assert.Equal(t, "custom-documents/annual-report.pdf-abc.json", doc.DocPath)
	assert.Equal(t, []string{"annual-report.pdf"}, ws.uploadedAs)
	require.Len(t, ws.embedded, 1)
	assert.Equal(t, []string{"custom-documents/annual-report.pdf-abc.json"}, ws.embedded[0])

	// The bytes are cached locally under the stored name.
	data, err := os.ReadFile(m.LocalPath(doc))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
	assert.Equal(t, ".pdf", filepath.Ext(doc.StoredName))
}

func TestSave_PushFailureKeepsRecord(t *testing.T) {
	m, ws := newTestManager(t)
	ws.uploadErr = eris.New("workspace: upload returned 502")

	doc, err := m.Save(context.Background(), "annual-report.pdf", "application/pdf", []byte("%PDF-1.4"), "acme")
	require.NoError(t, err)

	// The record exists without backend identifiers, awaiting backfill.
	assert.Empty(t, doc.DocID)
	assert.Empty(t, doc.DocPath)
	assert.Empty(t, ws.embedded)

	list, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOpen(t *testing.T) {
	m, ws := newTestManager(t)
	ws.uploadRec = &workspace.DocumentRecord{ID: "d1", Title: "notes.txt", Location: "custom-documents/notes.json"}

	doc, err := m.Save(context.Background(), "notes.txt", "text/plain", []byte("hello"), "")
	require.NoError(t, err)

	got, rc, err := m.Open(context.Background(), doc.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, doc.ID, got.ID)

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalPaths(t *testing.T) {
	m, ws := newTestManager(t)
	ws.uploadRec = &workspace.DocumentRecord{ID: "d1", Title: "a.pdf", Location: "custom-documents/a.json"}

	doc, err := m.Save(context.Background(), "a.pdf", "application/pdf", []byte("%PDF"), "")
	require.NoError(t, err)

	paths, err := m.LocalPaths(context.Background(), []string{doc.ID})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, m.LocalPath(doc), paths[0])

	_, err = m.LocalPaths(context.Background(), []string{"missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDelete_RemovesEverywhere(t *testing.T) {
	m, ws := newTestManager(t)
	ws.uploadRec = &workspace.DocumentRecord{ID: "d1", Title: "a.pdf", Location: "custom-documents/a.json"}

	doc, err := m.Save(context.Background(), "a.pdf", "application/pdf", []byte("%PDF"), "")
	require.NoError(t, err)
	path := m.LocalPath(doc)

	require.NoError(t, m.Delete(context.Background(), doc.ID))

	require.Len(t, ws.removed, 1)
	assert.Equal(t, []string{"custom-documents/a.json"}, ws.removed[0])
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = m.Get(context.Background(), doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBackfill_MatchesOnOriginalName(t *testing.T) {
	m, ws := newTestManager(t)
	ws.uploadErr = eris.New("workspace down at upload time")

	doc, err := m.Save(context.Background(), "annual-report.pdf", "application/pdf", []byte("%PDF"), "")
	require.NoError(t, err)
	require.Empty(t, doc.DocPath)

	ws.uploadErr = nil
	ws.listDocs = []workspace.DocumentRecord{
		{ID: "ws-doc-9", Name: "annual-report.pdf-abc.json", Title: "annual-report.pdf", Location: "custom-documents/annual-report.pdf-abc.json"},
		{ID: "ws-doc-10", Title: "unrelated.pdf", Location: "custom-documents/unrelated.json"},
	}

	matched, err := m.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, matched)

	got, err := m.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "ws-doc-9", got.DocID)
	assert.Equal(t, "custom-documents/annual-report.pdf-abc.json", got.DocPath)

	// A second pass has nothing left to reconcile.
	matched, err = m.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, matched)
}
