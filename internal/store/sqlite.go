package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/late7/ai-doc-reader/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS registry_snapshots (
	kind       TEXT PRIMARY KEY,
	revision   INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
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
	saved_at      DATETIME NOT NULL,
	updated_at    DATETIME
);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	workspace     TEXT,
	backend       TEXT NOT NULL,
	mode          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	result_kind   TEXT,
	result        TEXT,
	sources       TEXT,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost          REAL NOT NULL DEFAULT 0,
	error         TEXT,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_workspace ON runs(workspace);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_documents_doc_id ON documents(doc_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) getSnapshot(ctx context.Context, kind SnapshotKind) (int64, []byte, error) {
	var revision int64
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT revision, payload FROM registry_snapshots WHERE kind = ?`, string(kind),
	).Scan(&revision, &payload)
	if err == sql.ErrNoRows {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, eris.Wrapf(err, "sqlite: get %s snapshot", kind)
	}
	return revision, []byte(payload), nil
}

func (s *SQLiteStore) putSnapshot(ctx context.Context, kind SnapshotKind, expectedRevision int64, payload []byte) (int64, error) {
	now := time.Now().UTC()

	if expectedRevision == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO registry_snapshots (kind, revision, payload, updated_at) VALUES (?, 1, ?, ?)`,
			string(kind), string(payload), now,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "constraint") {
				return 0, ErrRevisionConflict
			}
			return 0, eris.Wrapf(err, "sqlite: insert %s snapshot", kind)
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE registry_snapshots SET revision = revision + 1, payload = ?, updated_at = ? WHERE kind = ? AND revision = ?`,
		string(payload), now, string(kind), expectedRevision,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: update %s snapshot", kind)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return 0, ErrRevisionConflict
	}
	return expectedRevision + 1, nil
}

func (s *SQLiteStore) GetFigureSnapshot(ctx context.Context) (*FigureSnapshot, error) {
	revision, payload, err := s.getSnapshot(ctx, SnapshotFigures)
	if err != nil {
		return nil, err
	}
	snap := &FigureSnapshot{Revision: revision}
	if payload != nil {
		if err := json.Unmarshal(payload, &snap.Figures); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal figures")
		}
	}
	return snap, nil
}

func (s *SQLiteStore) PutFigureSnapshot(ctx context.Context, expectedRevision int64, figures []model.Figure) (*FigureSnapshot, error) {
	payload, err := json.Marshal(figures)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal figures")
	}
	revision, err := s.putSnapshot(ctx, SnapshotFigures, expectedRevision, payload)
	if err != nil {
		return nil, err
	}
	return &FigureSnapshot{Revision: revision, Figures: figures}, nil
}

func (s *SQLiteStore) GetQuestionSnapshot(ctx context.Context) (*QuestionSnapshot, error) {
	revision, payload, err := s.getSnapshot(ctx, SnapshotQuestions)
	if err != nil {
		return nil, err
	}
	snap := &QuestionSnapshot{Revision: revision}
	if payload != nil {
		if err := json.Unmarshal(payload, &snap.Questions); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal questions")
		}
	}
	return snap, nil
}

func (s *SQLiteStore) PutQuestionSnapshot(ctx context.Context, expectedRevision int64, questions []model.Question) (*QuestionSnapshot, error) {
	payload, err := json.Marshal(questions)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal questions")
	}
	revision, err := s.putSnapshot(ctx, SnapshotQuestions, expectedRevision, payload)
	if err != nil {
		return nil, err
	}
	return &QuestionSnapshot{Revision: revision, Questions: questions}, nil
}

func (s *SQLiteStore) CreateDocument(ctx context.Context, doc model.Document) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, original_name, stored_name, doc_filename, doc_path, doc_id, metadata_id, mime_type, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OriginalName, doc.StoredName, doc.DocFilename, doc.DocPath, doc.DocID, doc.MetadataID, doc.MimeType, doc.SavedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert document")
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, original_name, stored_name, doc_filename, doc_path, doc_id, metadata_id, mime_type, saved_at, updated_at
		 FROM documents WHERE id = ?`, id,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get document %s", id)
	}
	return doc, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, original_name, stored_name, doc_filename, doc_path, doc_id, metadata_id, mime_type, saved_at, updated_at
		 FROM documents ORDER BY saved_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, *doc)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents")
}

// UpdateDocumentRefs backfills workspace identifiers discovered after upload.
// Only non-empty fields in refs are written.
func (s *SQLiteStore) UpdateDocumentRefs(ctx context.Context, id string, refs model.Document) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET
			doc_filename = COALESCE(NULLIF(?, ''), doc_filename),
			doc_path     = COALESCE(NULLIF(?, ''), doc_path),
			doc_id       = COALESCE(NULLIF(?, ''), doc_id),
			metadata_id  = COALESCE(NULLIF(?, ''), metadata_id),
			updated_at   = ?
		 WHERE id = ?`,
		refs.DocFilename, refs.DocPath, refs.DocID, refs.MetadataID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update document refs %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete document %s", id)
	}
	return checkRowsAffected(res, "document", id)
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workspace, backend, mode, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workspace, string(run.Backend), run.Mode, string(model.RunStatusRunning), run.CreatedAt, run.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result model.Result, sources []model.Source, usage model.TokenUsage) error {
	resultJSON, err := json.Marshal(result.Payload())
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, result_kind = ?, result = ?, sources = ?, input_tokens = ?, output_tokens = ?, cost = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), string(result.Kind), string(resultJSON), string(sourcesJSON),
		usage.InputTokens, usage.OutputTokens, usage.Cost, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), detail, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace, backend, mode, status, result_kind, result, sources, input_tokens, output_tokens, cost, error, created_at, updated_at
		 FROM runs WHERE id = ?`, runID,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, workspace, backend, mode, status, result_kind, result, sources, input_tokens, output_tokens, cost, error, created_at, updated_at FROM runs`
	var args []any
	if filter.Workspace != "" {
		query += ` WHERE workspace = ?`
		args = append(args, filter.Workspace)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(sc scanner) (*model.Document, error) {
	var doc model.Document
	var docFilename, docPath, docID, metadataID, mimeType sql.NullString
	var updatedAt sql.NullTime
	err := sc.Scan(&doc.ID, &doc.OriginalName, &doc.StoredName, &docFilename, &docPath, &docID, &metadataID, &mimeType, &doc.SavedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	doc.DocFilename = docFilename.String
	doc.DocPath = docPath.String
	doc.DocID = docID.String
	doc.MetadataID = metadataID.String
	doc.MimeType = mimeType.String
	if updatedAt.Valid {
		t := updatedAt.Time
		doc.UpdatedAt = &t
	}
	return &doc, nil
}

func scanRun(sc scanner) (*model.Run, error) {
	var run model.Run
	var backend, status string
	var resultKind, resultJSON, sourcesJSON, errDetail sql.NullString
	err := sc.Scan(&run.ID, &run.Workspace, &backend, &run.Mode, &status, &resultKind, &resultJSON, &sourcesJSON,
		&run.TokenUsage.InputTokens, &run.TokenUsage.OutputTokens, &run.TokenUsage.Cost, &errDetail, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.Backend = model.RunBackend(backend)
	run.Status = model.RunStatus(status)
	run.ErrorDetail = errDetail.String
	if resultKind.Valid && resultJSON.Valid {
		run.ResultKind = model.ResultKind(resultKind.String)
		decoded, err := model.DecodeResult(run.ResultKind, []byte(resultJSON.String))
		if err != nil {
			return nil, eris.Wrap(err, "decode stored result")
		}
		run.Result = &decoded
	}
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		if err := json.Unmarshal([]byte(sourcesJSON.String), &run.Sources); err != nil {
			return nil, eris.Wrap(err, "decode stored sources")
		}
	}
	return &run, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
