package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/late7/ai-doc-reader/internal/model"
)

// ErrRevisionConflict is returned when a registry snapshot write carries a
// stale revision token: another writer got there first.
var ErrRevisionConflict = eris.New("store: revision conflict")

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = eris.New("store: not found")

// SnapshotKind distinguishes the persisted registries.
type SnapshotKind string

const (
	SnapshotFigures   SnapshotKind = "figures"
	SnapshotQuestions SnapshotKind = "questions"
)

// FigureSnapshot is the figure registry as a unit of persistence: the full
// ordered list plus a monotonically increasing revision.
type FigureSnapshot struct {
	Revision int64          `json:"revision"`
	Figures  []model.Figure `json:"figures"`
}

// QuestionSnapshot mirrors FigureSnapshot for the question registry.
type QuestionSnapshot struct {
	Revision  int64            `json:"revision"`
	Questions []model.Question `json:"questions"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Workspace string `json:"workspace,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Store defines the persistence interface for the dashboard backend.
type Store interface {
	// Registry snapshots. Put replaces the whole snapshot; expectedRevision
	// must match the stored revision or the write fails with
	// ErrRevisionConflict. A fresh registry has revision 0.
	GetFigureSnapshot(ctx context.Context) (*FigureSnapshot, error)
	PutFigureSnapshot(ctx context.Context, expectedRevision int64, figures []model.Figure) (*FigureSnapshot, error)
	GetQuestionSnapshot(ctx context.Context) (*QuestionSnapshot, error)
	PutQuestionSnapshot(ctx context.Context, expectedRevision int64, questions []model.Question) (*QuestionSnapshot, error)

	// Uploaded-document metadata.
	CreateDocument(ctx context.Context, doc model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context) ([]model.Document, error)
	UpdateDocumentRefs(ctx context.Context, id string, refs model.Document) error
	DeleteDocument(ctx context.Context, id string) error

	// Analysis run history.
	CreateRun(ctx context.Context, run model.Run) error
	CompleteRun(ctx context.Context, runID string, result model.Result, sources []model.Source, usage model.TokenUsage) error
	FailRun(ctx context.Context, runID string, detail string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
