// Package registry manages the ordered figure and question registries. A
// registry is persisted as a full snapshot: every mutation reads the current
// snapshot, rewrites the whole list and writes it back under the revision it
// read, so concurrent editors fail with a revision conflict instead of
// silently overwriting each other.
package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/late7/ai-doc-reader/internal/model"
	"github.com/late7/ai-doc-reader/internal/store"
)

// ValidationError marks malformed user input to the registry. The API layer
// maps it to a 400 response.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "registry: " + e.Reason
}

func validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Registry provides figure and question registry operations over a Store.
type Registry struct {
	store store.Store
}

// New creates a Registry backed by st.
func New(st store.Store) *Registry {
	return &Registry{store: st}
}

// FigurePatch holds optional field updates for a figure. Nil fields are left
// unchanged.
type FigurePatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty"`
}

// ListFigures returns the current figure snapshot, revision included.
func (r *Registry) ListFigures(ctx context.Context) (*store.FigureSnapshot, error) {
	return r.store.GetFigureSnapshot(ctx)
}

// ReplaceFigures swaps the entire figure list under the given revision token.
// Orders are renumbered to the contiguous sequence 1..n.
func (r *Registry) ReplaceFigures(ctx context.Context, revision int64, figures []model.Figure) (*store.FigureSnapshot, error) {
	seen := make(map[string]bool, len(figures))
	for _, f := range figures {
		if f.ID == "" {
			return nil, validationf("figure %q has no id", f.Name)
		}
		if f.Name == "" {
			return nil, validationf("figure %q has no name", f.ID)
		}
		if seen[f.ID] {
			return nil, validationf("duplicate figure id %q", f.ID)
		}
		seen[f.ID] = true
	}
	renumberFigures(figures)
	return r.store.PutFigureSnapshot(ctx, revision, figures)
}

// CreateFigure appends a figure with an id derived from its name. Creating a
// figure whose derived id already exists fails; the UI is expected to
// pre-check.
func (r *Registry) CreateFigure(ctx context.Context, name, description string) (*store.FigureSnapshot, error) {
	if name == "" {
		return nil, validationf("figure name is required")
	}
	if description == "" {
		return nil, validationf("figure description is required")
	}

	id, err := model.DeriveFigureID(name)
	if err != nil {
		return nil, validationf("cannot derive id from name %q", name)
	}

	snap, err := r.store.GetFigureSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if findFigure(snap.Figures, id) >= 0 {
		return nil, validationf("figure id %q already exists", id)
	}

	snap.Figures = append(snap.Figures, model.Figure{
		ID:          id,
		Name:        name,
		Description: description,
		Enabled:     true,
		Order:       len(snap.Figures) + 1,
	})
	return r.store.PutFigureSnapshot(ctx, snap.Revision, snap.Figures)
}

// UpdateFigure applies a patch to the figure with the given id.
func (r *Registry) UpdateFigure(ctx context.Context, id string, patch FigurePatch) (*store.FigureSnapshot, error) {
	snap, err := r.store.GetFigureSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	i := findFigure(snap.Figures, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, validationf("figure name cannot be empty")
		}
		snap.Figures[i].Name = *patch.Name
	}
	if patch.Description != nil {
		snap.Figures[i].Description = *patch.Description
	}
	if patch.Enabled != nil {
		snap.Figures[i].Enabled = *patch.Enabled
	}
	return r.store.PutFigureSnapshot(ctx, snap.Revision, snap.Figures)
}

// RemoveFigure deletes the figure with the given id and renumbers the rest.
func (r *Registry) RemoveFigure(ctx context.Context, id string) (*store.FigureSnapshot, error) {
	snap, err := r.store.GetFigureSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	i := findFigure(snap.Figures, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	snap.Figures = append(snap.Figures[:i], snap.Figures[i+1:]...)
	renumberFigures(snap.Figures)
	return r.store.PutFigureSnapshot(ctx, snap.Revision, snap.Figures)
}

// ReorderFigure moves the figure with the given id to the 1-based position
// pos, clamped into [1, n], and renumbers every figure. Registries stay small
// so the full renumbering is fine.
func (r *Registry) ReorderFigure(ctx context.Context, id string, pos int) (*store.FigureSnapshot, error) {
	snap, err := r.store.GetFigureSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	i := findFigure(snap.Figures, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}

	if pos < 1 {
		pos = 1
	}
	if pos > len(snap.Figures) {
		pos = len(snap.Figures)
	}

	f := snap.Figures[i]
	snap.Figures = append(snap.Figures[:i], snap.Figures[i+1:]...)
	rest := make([]model.Figure, 0, len(snap.Figures)+1)
	rest = append(rest, snap.Figures[:pos-1]...)
	rest = append(rest, f)
	rest = append(rest, snap.Figures[pos-1:]...)
	snap.Figures = rest
	renumberFigures(snap.Figures)

	return r.store.PutFigureSnapshot(ctx, snap.Revision, snap.Figures)
}

// ImportResult reports the outcome of a bulk figure import.
type ImportResult struct {
	Imported int `json:"imported"`
	Dropped  int `json:"dropped"`
}

// ImportFigures appends figures built from tabular rows (name, description)
// to the registry. Rows with an empty name are dropped; derived ids that
// collide with the registry or with earlier rows are suffixed _1, _2, ... in
// row order. When zero valid rows remain the import fails and the registry is
// untouched.
func (r *Registry) ImportFigures(ctx context.Context, rows [][]string) (*store.FigureSnapshot, *ImportResult, error) {
	snap, err := r.store.GetFigureSnapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	taken := make(map[string]bool, len(snap.Figures))
	for _, f := range snap.Figures {
		taken[f.ID] = true
	}

	res := &ImportResult{}
	var imported []model.Figure
	for _, row := range rows {
		var name, description string
		if len(row) > 0 {
			name = row[0]
		}
		if len(row) > 1 {
			description = row[1]
		}
		if name == "" {
			res.Dropped++
			continue
		}
		id, err := model.DeriveFigureID(name)
		if err != nil {
			res.Dropped++
			continue
		}
		if taken[id] {
			for n := 1; ; n++ {
				candidate := fmt.Sprintf("%s_%d", id, n)
				if !taken[candidate] {
					id = candidate
					break
				}
			}
		}
		taken[id] = true
		imported = append(imported, model.Figure{
			ID:          id,
			Name:        name,
			Description: description,
			Enabled:     true,
		})
		res.Imported++
	}

	if len(imported) == 0 {
		return nil, nil, validationf("import: no valid rows (all %d rows dropped)", res.Dropped)
	}

	snap.Figures = append(snap.Figures, imported...)
	renumberFigures(snap.Figures)

	out, err := r.store.PutFigureSnapshot(ctx, snap.Revision, snap.Figures)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("registry: figures imported",
		zap.Int("imported", res.Imported),
		zap.Int("dropped", res.Dropped),
	)
	return out, res, nil
}

func findFigure(figures []model.Figure, id string) int {
	for i, f := range figures {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func renumberFigures(figures []model.Figure) {
	for i := range figures {
		figures[i].Order = i + 1
	}
}

// --- question registry ---

// QuestionPatch holds optional field updates for a question.
type QuestionPatch struct {
	Title   *string `json:"title,omitempty"`
	Prompt  *string `json:"prompt,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// ListQuestions returns the current question snapshot.
func (r *Registry) ListQuestions(ctx context.Context) (*store.QuestionSnapshot, error) {
	return r.store.GetQuestionSnapshot(ctx)
}

// CreateQuestion appends a question to the registry.
func (r *Registry) CreateQuestion(ctx context.Context, title, promptText string) (*store.QuestionSnapshot, error) {
	if title == "" {
		return nil, validationf("question title is required")
	}
	if promptText == "" {
		return nil, validationf("question prompt is required")
	}
	snap, err := r.store.GetQuestionSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	snap.Questions = append(snap.Questions, model.Question{
		ID:      uuid.New().String(),
		Title:   title,
		Prompt:  promptText,
		Enabled: true,
		Order:   len(snap.Questions) + 1,
	})
	return r.store.PutQuestionSnapshot(ctx, snap.Revision, snap.Questions)
}

// UpdateQuestion applies a patch to the question with the given id.
func (r *Registry) UpdateQuestion(ctx context.Context, id string, patch QuestionPatch) (*store.QuestionSnapshot, error) {
	snap, err := r.store.GetQuestionSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	i := findQuestion(snap.Questions, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	if patch.Title != nil {
		if *patch.Title == "" {
			return nil, validationf("question title cannot be empty")
		}
		snap.Questions[i].Title = *patch.Title
	}
	if patch.Prompt != nil {
		snap.Questions[i].Prompt = *patch.Prompt
	}
	if patch.Enabled != nil {
		snap.Questions[i].Enabled = *patch.Enabled
	}
	return r.store.PutQuestionSnapshot(ctx, snap.Revision, snap.Questions)
}

// RemoveQuestion deletes a question and renumbers the rest.
func (r *Registry) RemoveQuestion(ctx context.Context, id string) (*store.QuestionSnapshot, error) {
	snap, err := r.store.GetQuestionSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	i := findQuestion(snap.Questions, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	snap.Questions = append(snap.Questions[:i], snap.Questions[i+1:]...)
	renumberQuestions(snap.Questions)
	return r.store.PutQuestionSnapshot(ctx, snap.Revision, snap.Questions)
}

// ReorderQuestion moves a question to the 1-based position pos, clamped into
// [1, n].
func (r *Registry) ReorderQuestion(ctx context.Context, id string, pos int) (*store.QuestionSnapshot, error) {
	snap, err := r.store.GetQuestionSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	i := findQuestion(snap.Questions, id)
	if i < 0 {
		return nil, store.ErrNotFound
	}

	if pos < 1 {
		pos = 1
	}
	if pos > len(snap.Questions) {
		pos = len(snap.Questions)
	}

	q := snap.Questions[i]
	snap.Questions = append(snap.Questions[:i], snap.Questions[i+1:]...)
	rest := make([]model.Question, 0, len(snap.Questions)+1)
	rest = append(rest, snap.Questions[:pos-1]...)
	rest = append(rest, q)
	rest = append(rest, snap.Questions[pos-1:]...)
	snap.Questions = rest
	renumberQuestions(snap.Questions)

	return r.store.PutQuestionSnapshot(ctx, snap.Revision, snap.Questions)
}

func findQuestion(questions []model.Question, id string) int {
	for i, q := range questions {
		if q.ID == id {
			return i
		}
	}
	return -1
}

func renumberQuestions(questions []model.Question) {
	for i := range questions {
		questions[i].Order = i + 1
	}
}
