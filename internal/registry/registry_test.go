package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st)
}

func seedFigures(t *testing.T, r *Registry, names ...string) *store.FigureSnapshot {
	t.Helper()
	ctx := context.Background()
	var snap *store.FigureSnapshot
	var err error
	for _, name := range names {
		snap, err = r.CreateFigure(ctx, name, name+" description")
		require.NoError(t, err)
	}
	return snap
}

func figureIDs(figures []model.Figure) []string {
	ids := make([]string, len(figures))
	for i, f := range figures {
		ids[i] = f.ID
	}
	return ids
}

func TestCreateFigure(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	snap, err := r.CreateFigure(ctx, "Operating Profit", "EBIT from the income statement")
	require.NoError(t, err)
	require.Len(t, snap.Figures, 1)
	assert.Equal(t, "operating_profit", snap.Figures[0].ID)
	assert.True(t, snap.Figures[0].Enabled)
	assert.Equal(t, 1, snap.Figures[0].Order)
	assert.Equal(t, int64(1), snap.Revision)
}

func TestCreateFigure_DuplicateID(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	seedFigures(t, r, "Revenue")

	_, err := r.CreateFigure(ctx, "revenue", "same derived id")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCreateFigure_Invalid(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	var verr *ValidationError
	_, err := r.CreateFigure(ctx, "", "desc")
	require.ErrorAs(t, err, &verr)

	_, err = r.CreateFigure(ctx, "Revenue", "")
	require.ErrorAs(t, err, &verr)

	_, err = r.CreateFigure(ctx, "???", "desc")
	require.ErrorAs(t, err, &verr)
}

func TestUpdateFigure(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	seedFigures(t, r, "Revenue")

	enabled := false
	name := "Net Revenue"
	snap, err := r.UpdateFigure(ctx, "revenue", FigurePatch{Name: &name, Enabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, "Net Revenue", snap.Figures[0].Name)
	assert.False(t, snap.Figures[0].Enabled)
	// The id is stable across renames.
	assert.Equal(t, "revenue", snap.Figures[0].ID)

	_, err = r.UpdateFigure(ctx, "missing", FigurePatch{Name: &name})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoveFigure_Renumbers(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	seedFigures(t, r, "Revenue", "EBITDA", "Net Income")

	snap, err := r.RemoveFigure(ctx, "ebitda")
	require.NoError(t, err)
	assert.Equal(t, []string{"revenue", "net_income"}, figureIDs(snap.Figures))
	assert.Equal(t, 1, snap.Figures[0].Order)
	assert.Equal(t, 2, snap.Figures[1].Order)
}

func TestReorderFigure(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	seedFigures(t, r, "Revenue", "EBITDA", "Net Income")

	snap, err := r.ReorderFigure(ctx, "net_income", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"net_income", "revenue", "ebitda"}, figureIDs(snap.Figures))
	for i, f := range snap.Figures {
		assert.Equal(t, i+1, f.Order)
	}
}

func TestReorderFigure_ClampsPosition(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	seedFigures(t, r, "Revenue", "EBITDA", "Net Income")

	snap, err := r.ReorderFigure(ctx, "revenue", 99)
	require.NoError(t, err)
	assert.Equal(t, []string{"ebitda", "net_income", "revenue"}, figureIDs(snap.Figures))

	snap, err = r.ReorderFigure(ctx, "revenue", -5)
	require.NoError(t, err)
	assert.Equal(t, "revenue", snap.Figures[0].ID)
}

func TestReplaceFigures(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	snap := seedFigures(t, r, "Revenue")

	out, err := r.ReplaceFigures(ctx, snap.Revision, []model.Figure{
		{ID: "ebitda", Name: "EBITDA", Enabled: true, Order: 40},
		{ID: "revenue", Name: "Revenue", Enabled: true, Order: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ebitda", "revenue"}, figureIDs(out.Figures))
	// Orders are renumbered regardless of what the client sent.
	assert.Equal(t, 1, out.Figures[0].Order)
	assert.Equal(t, 2, out.Figures[1].Order)
}

func TestReplaceFigures_StaleRevision(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	snap := seedFigures(t, r, "Revenue")

	// A concurrent writer advances the revision.
	_, err := r.CreateFigure(ctx, "EBITDA", "desc")
	require.NoError(t, err)

	_, err = r.ReplaceFigures(ctx, snap.Revision, []model.Figure{{ID: "x", Name: "X"}})
	assert.ErrorIs(t, err, store.ErrRevisionConflict)
}

func TestReplaceFigures_Validation(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	var verr *ValidationError
	_, err := r.ReplaceFigures(ctx, 0, []model.Figure{{ID: "", Name: "X"}})
	require.ErrorAs(t, err, &verr)

	_, err = r.ReplaceFigures(ctx, 0, []model.Figure{
		{ID: "a", Name: "A"},
		{ID: "a", Name: "A again"},
	})
	require.ErrorAs(t, err, &verr)
}

func TestImportFigures(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	seedFigures(t, r, "Revenue")

	snap, res, err := r.ImportFigures(ctx, [][]string{
		{"Revenue", "collides with existing id"},
		{"EBITDA", "new"},
		{"", "dropped, no name"},
		{"Revenue", "collides again"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, []string{"revenue", "revenue_1", "ebitda", "revenue_2"}, figureIDs(snap.Figures))
	for i, f := range snap.Figures {
		assert.Equal(t, i+1, f.Order)
	}
}

func TestImportFigures_AllInvalid(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	seedFigures(t, r, "Revenue")

	_, _, err := r.ImportFigures(ctx, [][]string{{""}, {"", "desc"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// The registry is untouched by a failed import.
	snap, err := r.ListFigures(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Figures, 1)
}

func TestQuestionLifecycle(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	snap, err := r.CreateQuestion(ctx, "Ownership", "Who owns the company?")
	require.NoError(t, err)
	require.Len(t, snap.Questions, 1)
	assert.NotEmpty(t, snap.Questions[0].ID)
	assert.True(t, snap.Questions[0].Enabled)

	snap, err = r.CreateQuestion(ctx, "Auditor", "Who is the auditor?")
	require.NoError(t, err)
	require.Len(t, snap.Questions, 2)

	id := snap.Questions[1].ID
	snap, err = r.ReorderQuestion(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, id, snap.Questions[0].ID)

	enabled := false
	snap, err = r.UpdateQuestion(ctx, id, QuestionPatch{Enabled: &enabled})
	require.NoError(t, err)
	assert.False(t, snap.Questions[0].Enabled)

	snap, err = r.RemoveQuestion(ctx, id)
	require.NoError(t, err)
	require.Len(t, snap.Questions, 1)
	assert.Equal(t, 1, snap.Questions[0].Order)
}
