package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/late7/ai-doc-reader/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func f64(v float64) *float64 { return &v }

// --- Registry snapshots ---

func TestSQLite_FigureSnapshot_EmptyRegistry(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	snap, err := st.GetFigureSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Revision)
	assert.Empty(t, snap.Figures)
}

func TestSQLite_FigureSnapshot_PutAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	figures := []model.Figure{
		{ID: "revenue", Name: "Revenue", Enabled: true, Order: 1},
		{ID: "ebitda", Name: "EBITDA", Enabled: false, Order: 2},
	}

	put, err := st.PutFigureSnapshot(ctx, 0, figures)
	require.NoError(t, err)
	assert.Equal(t, int64(1), put.Revision)

	got, err := st.GetFigureSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Revision)
	require.Len(t, got.Figures, 2)
	assert.Equal(t, "revenue", got.Figures[0].ID)
	assert.False(t, got.Figures[1].Enabled)
}

func TestSQLite_FigureSnapshot_RevisionAdvances(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.PutFigureSnapshot(ctx, 0, []model.Figure{{ID: "a", Name: "A"}})
	require.NoError(t, err)

	put, err := st.PutFigureSnapshot(ctx, 1, []model.Figure{{ID: "b", Name: "B"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), put.Revision)
}

func TestSQLite_FigureSnapshot_StaleRevisionConflicts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.PutFigureSnapshot(ctx, 0, []model.Figure{{ID: "a", Name: "A"}})
	require.NoError(t, err)
	_, err = st.PutFigureSnapshot(ctx, 1, []model.Figure{{ID: "b", Name: "B"}})
	require.NoError(t, err)

	// Writing under the already-consumed revision fails.
	_, err = st.PutFigureSnapshot(ctx, 1, []model.Figure{{ID: "c", Name: "C"}})
	assert.ErrorIs(t, err, ErrRevisionConflict)

	// So does pretending the registry is still empty.
	_, err = st.PutFigureSnapshot(ctx, 0, []model.Figure{{ID: "c", Name: "C"}})
	assert.ErrorIs(t, err, ErrRevisionConflict)
}

func TestSQLite_QuestionSnapshot_IndependentOfFigures(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.PutFigureSnapshot(ctx, 0, []model.Figure{{ID: "a", Name: "A"}})
	require.NoError(t, err)

	qput, err := st.PutQuestionSnapshot(ctx, 0, []model.Question{{ID: "q1", Title: "Ownership"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), qput.Revision)

	got, err := st.GetQuestionSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got.Questions, 1)
	assert.Equal(t, "Ownership", got.Questions[0].Title)
}

// --- Documents ---

func TestSQLite_Document_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	doc := model.Document{
		ID:           "doc-1",
		OriginalName: "annual-report.pdf",
		StoredName:   "abc123.pdf",
		MimeType:     "application/pdf",
		SavedAt:      time.Now().UTC(),
	}
	require.NoError(t, st.CreateDocument(ctx, doc))

	got, err := st.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "annual-report.pdf", got.OriginalName)
	assert.Empty(t, got.DocID)
	assert.Nil(t, got.UpdatedAt)

	require.NoError(t, st.UpdateDocumentRefs(ctx, "doc-1", model.Document{
		DocFilename: "annual-report.pdf-abc.json",
		DocID:       "ws-doc-9",
	}))

	got, err = st.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "ws-doc-9", got.DocID)
	assert.NotNil(t, got.UpdatedAt)
	// Fields absent from the refs update keep their stored value.
	assert.Equal(t, "abc123.pdf", got.StoredName)

	require.NoError(t, st.DeleteDocument(ctx, "doc-1"))
	_, err = st.GetDocument(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Document_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.DeleteDocument(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.UpdateDocumentRefs(ctx, "missing", model.Document{DocID: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListDocuments_OrderedBySavedAt(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, id := range []string{"doc-b", "doc-a"} {
		require.NoError(t, st.CreateDocument(ctx, model.Document{
			ID:           id,
			OriginalName: id + ".pdf",
			StoredName:   id,
			SavedAt:      base.Add(time.Duration(-i) * time.Hour),
		}))
	}

	docs, err := st.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-a", docs[0].ID)
	assert.Equal(t, "doc-b", docs[1].ID)
}

// --- Runs ---

func TestSQLite_Run_CompleteLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := model.Run{
		ID:        "run-1",
		Workspace: "acme",
		Backend:   model.BackendWorkspace,
		Mode:      "single-period",
	}
	require.NoError(t, st.CreateRun(ctx, run))

	got, err := st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Nil(t, got.Result)

	result := model.Result{
		Kind: model.KindSinglePeriod,
		SinglePeriod: &model.SinglePeriodResult{
			CompanyName: "Acme Oy",
			Currency:    "EUR",
			FinancialData: map[string]model.FigureValue{
				"revenue": {Value: f64(1500000), Currency: "EUR", Period: "FY2024"},
			},
		},
	}
	sources := []model.Source{{Document: "annual-report.pdf", Text: "Revenue was EUR 1.5M"}}
	usage := model.TokenUsage{InputTokens: 1200, OutputTokens: 300, Cost: 0.0081}
	require.NoError(t, st.CompleteRun(ctx, "run-1", result, sources, usage))

	got, err = st.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, model.KindSinglePeriod, got.ResultKind)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.Result.SinglePeriod)
	assert.Equal(t, "Acme Oy", got.Result.SinglePeriod.CompanyName)
	assert.Equal(t, 1500000.0, *got.Result.SinglePeriod.FinancialData["revenue"].Value)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, 1200, got.TokenUsage.InputTokens)
}

func TestSQLite_Run_Fail(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRun(ctx, model.Run{ID: "run-2", Backend: model.BackendDirectUpload, Mode: "timeseries"}))
	require.NoError(t, st.FailRun(ctx, "run-2", "workspace chat: status 502"))

	got, err := st.GetRun(ctx, "run-2")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	assert.Equal(t, "workspace chat: status 502", got.ErrorDetail)
	assert.Nil(t, got.Result)
}

func TestSQLite_ListRuns_FilterAndLimit(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, run := range []model.Run{
		{ID: "r1", Workspace: "acme", Backend: model.BackendWorkspace, Mode: "single-period"},
		{ID: "r2", Workspace: "acme", Backend: model.BackendWorkspace, Mode: "timeseries"},
		{ID: "r3", Workspace: "other", Backend: model.BackendWorkspace, Mode: "single-period"},
	} {
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.CreateRun(ctx, run))
	}

	runs, err := st.ListRuns(ctx, RunFilter{Workspace: "acme"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	// Newest first.
	assert.Equal(t, "r2", runs[0].ID)

	runs, err = st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r3", runs[0].ID)
}

func TestSQLite_Run_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.CompleteRun(ctx, "missing", model.Result{Kind: model.KindError, Error: &model.ExtractionError{}}, nil, model.TokenUsage{})
	assert.ErrorIs(t, err, ErrNotFound)
}
