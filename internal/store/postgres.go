package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/late7/ai-doc-reader/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it in
// tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS registry_snapshots (
	kind       TEXT PRIMARY KEY,
	revision   BIGINT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	original_name TEXT NOT NULL,
	stored_name   TEXT NOT NULL,
	doc_filename  TEXT,
	doc_path      TEXT,
	doc_id        TEXT,
	metadata_id   TEXT,
	mime_type     TEXT,
	saved_at      TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	workspace     TEXT,
	backend       TEXT NOT NULL,
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	result_kind   TEXT,
	result        JSONB,
	sources       JSONB,
	input_tokens  BIGINT NOT NULL DEFAULT 0,
	output_tokens BIGINT NOT NULL DEFAULT 0,
	cost          DOUBLE PRECISION NOT NULL DEFAULT 0,
	error         TEXT,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_workspace ON runs(workspace);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_documents_doc_id ON documents(doc_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) getSnapshot(ctx context.Context, kind SnapshotKind) (int64, []byte, error) {
	var revision int64
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT revision, payload FROM registry_snapshots WHERE kind = $1`, string(kind),
	).Scan(&revision, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, eris.Wrapf(err, "postgres: get %s snapshot", kind)
	}
	return revision, payload, nil
}

func (s *PostgresStore) putSnapshot(ctx context.Context, kind SnapshotKind, expectedRevision int64, payload []byte) (int64, error) {
	if expectedRevision == 0 {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO registry_snapshots (kind, revision, payload, updated_at) VALUES ($1, 1, $2, now())`,
			string(kind), payload,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return 0, ErrRevisionConflict
			}
			return 0, eris.Wrapf(err, "postgres: insert %s snapshot", kind)
		}
		return 1, nil
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE registry_snapshots SET revision = revision + 1, payload = $1, updated_at = now() WHERE kind = $2 AND revision = $3`,
		payload, string(kind), expectedRevision,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: update %s snapshot", kind)
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrRevisionConflict
	}
	return expectedRevision + 1, nil
}

func (s *PostgresStore) GetFigureSnapshot(ctx context.Context) (*FigureSnapshot, error) {
	revision, payload, err := s.getSnapshot(ctx, SnapshotFigures)
	if err != nil {
		return nil, err
	}
	snap := &FigureSnapshot{Revision: revision}
	if payload != nil {
		if err := json.Unmarshal(payload, &snap.Figures); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal figures")
		}
	}
	return snap, nil
}

func (s *PostgresStore) PutFigureSnapshot(ctx context.Context, expectedRevision int64, figures []model.Figure) (*FigureSnapshot, error) {
	payload, err := json.Marshal(figures)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal figures")
	}
	revision, err := s.putSnapshot(ctx, SnapshotFigures, expectedRevision, payload)
	if err != nil {
		return nil, err
	}
	return &FigureSnapshot{Revision: revision, Figures: figures}, nil
}

func (s *PostgresStore) GetQuestionSnapshot(ctx context.Context) (*QuestionSnapshot, error) {
	revision, payload, err := s.getSnapshot(ctx, SnapshotQuestions)
	if err != nil {
		return nil, err
	}
	snap := &QuestionSnapshot{Revision: revision}
	if payload != nil {
		if err := json.Unmarshal(payload, &snap.Questions); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal questions")
		}
	}
	return snap, nil
}

func (s *PostgresStore) PutQuestionSnapshot(ctx context.Context, expectedRevision int64, questions []model.Question) (*QuestionSnapshot, error) {
	payload, err := json.Marshal(questions)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal questions")
	}
	revision, err := s.putSnapshot(ctx, SnapshotQuestions, expectedRevision, payload)
	if err != nil {
		return nil, err
	}
	return &QuestionSnapshot{Revision: revision, Questions: questions}, nil
}

func (s *PostgresStore) CreateDocument(ctx context.Context, doc model.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, original_name, stored_name, doc_filename, doc_path, doc_id, metadata_id, mime_type, saved_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.OriginalName, doc.StoredName, nullable(doc.DocFilename), nullable(doc.DocPath),
		nullable(doc.DocID), nullable(doc.MetadataID), nullable(doc.MimeType), doc.SavedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert document")
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, original_name, stored_name, doc_filename, doc_path, doc_id, metadata_id, mime_type, saved_at, updated_at
		 FROM documents WHERE id = $1`, id,
	)
	doc, err := scanPgDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get document %s", id)
	}
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, original_name, stored_name, doc_filename, doc_path, doc_id, metadata_id, mime_type, saved_at, updated_at
		 FROM documents ORDER BY saved_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanPgDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents")
}

func (s *PostgresStore) UpdateDocumentRefs(ctx context.Context, id string, refs model.Document) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET
			doc_filename = COALESCE(NULLIF($1, ''), doc_filename),
			doc_path     = COALESCE(NULLIF($2, ''), doc_path),
			doc_id       = COALESCE(NULLIF($3, ''), doc_id),
			metadata_id  = COALESCE(NULLIF($4, ''), metadata_id),
			updated_at   = now()
		 WHERE id = $5`,
		refs.DocFilename, refs.DocPath, refs.DocID, refs.MetadataID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update document refs %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete document %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "document %s", id)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, workspace, backend, mode, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.Workspace, string(run.Backend), run.Mode, string(model.RunStatusRunning), run.CreatedAt, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result model.Result, sources []model.Source, usage model.TokenUsage) error {
	resultJSON, err := json.Marshal(result.Payload())
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, result_kind = $2, result = $3, sources = $4, input_tokens = $5, output_tokens = $6, cost = $7, updated_at = now() WHERE id = $8`,
		string(model.RunStatusComplete), string(result.Kind), resultJSON, sourcesJSON,
		usage.InputTokens, usage.OutputTokens, usage.Cost, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, detail string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = now() WHERE id = $3`,
		string(model.RunStatusFailed), detail, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, workspace, backend, mode, status, result_kind, result, sources, input_tokens, output_tokens, cost, error, created_at, updated_at
		 FROM runs WHERE id = $1`, runID,
	)
	run, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, workspace, backend, mode, status, result_kind, result, sources, input_tokens, output_tokens, cost, error, created_at, updated_at FROM runs`
	var args []any
	if filter.Workspace != "" {
		args = append(args, filter.Workspace)
		query += fmt.Sprintf(` WHERE workspace = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanPgDocument(row pgx.Row) (*model.Document, error) {
	var doc model.Document
	var docFilename, docPath, docID, metadataID, mimeType *string
	var updatedAt *time.Time
	err := row.Scan(&doc.ID, &doc.OriginalName, &doc.StoredName, &docFilename, &docPath, &docID, &metadataID, &mimeType, &doc.SavedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	doc.DocFilename = deref(docFilename)
	doc.DocPath = deref(docPath)
	doc.DocID = deref(docID)
	doc.MetadataID = deref(metadataID)
	doc.MimeType = deref(mimeType)
	doc.UpdatedAt = updatedAt
	return &doc, nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var run model.Run
	var backend, status string
	var resultKind, errDetail *string
	var resultJSON, sourcesJSON []byte
	err := row.Scan(&run.ID, &run.Workspace, &backend, &run.Mode, &status, &resultKind, &resultJSON, &sourcesJSON,
		&run.TokenUsage.InputTokens, &run.TokenUsage.OutputTokens, &run.TokenUsage.Cost, &errDetail, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.Backend = model.RunBackend(backend)
	run.Status = model.RunStatus(status)
	run.ErrorDetail = deref(errDetail)
	if resultKind != nil && resultJSON != nil {
		run.ResultKind = model.ResultKind(*resultKind)
		decoded, err := model.DecodeResult(run.ResultKind, resultJSON)
		if err != nil {
			return nil, eris.Wrap(err, "decode stored result")
		}
		run.Result = &decoded
	}
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &run.Sources); err != nil {
			return nil, eris.Wrap(err, "decode stored sources")
		}
	}
	return &run, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
