package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	active_generation TEXT NOT NULL DEFAULT '',
	ingestion_status TEXT NOT NULL,
	ingestion_progress INTEGER NOT NULL DEFAULT 0,
	ingestion_error TEXT NOT NULL DEFAULT '',
	extracted_data JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_ingestion_status ON documents(ingestion_status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	generation TEXT NOT NULL,
	seq INTEGER NOT NULL,
	page INTEGER NOT NULL,
	content TEXT NOT NULL,
	content_normalized TEXT NOT NULL,
	embedding JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_generation ON chunks(document_id, generation);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, storage_path, active_generation, ingestion_status, ingestion_progress, ingestion_error, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, doc.ActiveGeneration,
		string(doc.Ingestion.Status), doc.Ingestion.Progress, doc.Ingestion.Error,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, active_generation, ingestion_status, ingestion_progress, ingestion_error, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var status string

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.ActiveGeneration,
		&status, &doc.Ingestion.Progress, &doc.Ingestion.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Ingestion.Status = domain.IngestionStatus(status)
	return &doc, nil
}

// TryEnqueue flips the document to queued unless a run is already in
// flight. The conditional UPDATE is the single-flight gate: two racing
// triggers produce exactly one applied transition.
func (r *DocumentRepository) TryEnqueue(ctx context.Context, id string) (domain.IngestionState, bool, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET ingestion_status = $2, ingestion_progress = 0, ingestion_error = '', updated_at = $3
WHERE id = $1 AND ingestion_status IN ($4, $5, $6)
RETURNING ingestion_status, ingestion_progress, ingestion_error
`, id,
		string(domain.IngestionQueued),
		time.Now().UTC(),
		string(domain.IngestionNotStarted),
		string(domain.IngestionCompleted),
		string(domain.IngestionFailed),
	)

	state, err := scanIngestionState(row)
	if err == nil {
		return state, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.IngestionState{}, false, fmt.Errorf("enqueue ingestion: %w", err)
	}

	// No row updated: either the document does not exist or a run is in
	// flight. Re-read to tell the two apart.
	doc, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return domain.IngestionState{}, false, getErr
	}
	return doc.Ingestion, false, nil
}

func (r *DocumentRepository) MarkRunning(ctx context.Context, id string) error {
	return r.setIngestion(ctx, id, domain.IngestionRunning, 0, "")
}

func (r *DocumentRepository) SetProgress(ctx context.Context, id string, progress int) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ingestion_progress = $2, updated_at = $3
WHERE id = $1
`, id, progress, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set ingestion progress: %w", err)
	}
	return nil
}

// MarkCompleted is the visibility flip: the new generation becomes the
// active one in the same statement that records completion.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id, generation string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ingestion_status = $2, ingestion_progress = 100, ingestion_error = '', active_generation = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.IngestionCompleted), generation, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark ingestion completed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ingestion_status = $2, ingestion_error = $3, updated_at = $4
WHERE id = $1
`, id, string(domain.IngestionFailed), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark ingestion failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetExtractedFields(ctx context.Context, id string) (map[string]domain.ExtractedField, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT extracted_data
FROM documents
WHERE id = $1
`, id)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get extracted fields", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan extracted fields: %w", err)
	}
	fields, err := domain.DecodeExtractedFields(raw)
	if err != nil {
		return nil, fmt.Errorf("decode extracted fields: %w", err)
	}
	return fields, nil
}

func (r *DocumentRepository) setIngestion(ctx context.Context, id string, status domain.IngestionStatus, progress int, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET ingestion_status = $2, ingestion_progress = $3, ingestion_error = $4, updated_at = $5
WHERE id = $1
`, id, string(status), progress, errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set ingestion state: %w", err)
	}
	return nil
}

func scanIngestionState(row *sql.Row) (domain.IngestionState, error) {
	var state domain.IngestionState
	var status string
	if err := row.Scan(&status, &state.Progress, &state.Error); err != nil {
		return domain.IngestionState{}, err
	}
	state.Status = domain.IngestionStatus(status)
	return state, nil
}
