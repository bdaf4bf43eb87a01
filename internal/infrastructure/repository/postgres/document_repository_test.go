package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tndao/prospectus-rag/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTryEnqueueAppliesTransition(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("UPDATE documents").
		WithArgs(
			"doc-1",
			string(domain.IngestionQueued),
			sqlmock.AnyArg(),
			string(domain.IngestionNotStarted),
			string(domain.IngestionCompleted),
			string(domain.IngestionFailed),
		).
		WillReturnRows(sqlmock.NewRows([]string{"ingestion_status", "ingestion_progress", "ingestion_error"}).
			AddRow(string(domain.IngestionQueued), 0, ""))

	state, applied, err := repo.TryEnqueue(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("TryEnqueue() error = %v", err)
	}
	if !applied {
		t.Fatalf("expected applied transition")
	}
	if state.Status != domain.IngestionQueued || state.Progress != 0 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTryEnqueueReturnsCurrentStateWhileInFlight(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("UPDATE documents").
		WillReturnError(sql.ErrNoRows)

	cols := []string{
		"id", "filename", "mime_type", "storage_path", "active_generation",
		"ingestion_status", "ingestion_progress", "ingestion_error", "created_at", "updated_at",
	}
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("doc-1", "a.pdf", "application/pdf", "docs/a.pdf", "gen-1",
				string(domain.IngestionRunning), 40, "", now, now))

	state, applied, err := repo.TryEnqueue(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("TryEnqueue() error = %v", err)
	}
	if applied {
		t.Fatalf("expected transition to be rejected while running")
	}
	if state.Status != domain.IngestionRunning || state.Progress != 40 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTryEnqueueReportsMissingDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("UPDATE documents").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT id, filename, mime_type, storage_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, _, err := repo.TryEnqueue(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMarkCompletedFlipsActiveGeneration(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents").
		WithArgs("doc-1", string(domain.IngestionCompleted), "gen-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkCompleted(context.Background(), "doc-1", "gen-2"); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetExtractedFieldsDecodesPayload(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	raw := []byte(`{"management_fee":{"value":"2%/năm","page":7}}`)
	mock.ExpectQuery("SELECT extracted_data").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"extracted_data"}).AddRow(raw))

	fields, err := repo.GetExtractedFields(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetExtractedFields() error = %v", err)
	}
	field, ok := fields["management_fee"]
	if !ok {
		t.Fatalf("expected management_fee field, got %v", fields)
	}
	if field.Value != "2%/năm" || field.Page != 7 {
		t.Fatalf("unexpected field: %+v", field)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
