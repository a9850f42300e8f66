package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturio/internal/domain"
	"facturio/internal/repository/postgres"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func documentColumns() []string {
	return []string{
		"id", "tenant_id", "raw_text", "content_hash", "document_type", "subtypes",
		"classification_confidence", "extracted_fields", "extraction_source",
		"state", "error_kind", "error_reason", "warnings", "attempts",
		"created_at", "updated_at", "completed_at",
	}
}

func documentRow(doc *domain.Document) *sqlmock.Rows {
	return sqlmock.NewRows(documentColumns()).AddRow(
		doc.ID, doc.TenantID, doc.RawText, doc.ContentHash, doc.DocumentType, []byte(doc.Subtypes),
		doc.ClassificationConfidence, []byte(doc.ExtractedFields), doc.ExtractionSource,
		doc.State, doc.ErrorKind, doc.ErrorReason, []byte(doc.Warnings), doc.Attempts,
		doc.CreatedAt, doc.UpdatedAt, doc.CompletedAt,
	)
}

func sampleDocument(tenantID uuid.UUID) *domain.Document {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Document{
		ID:          uuid.New(),
		TenantID:    tenantID,
		RawText:     "FACTURA A ...",
		ContentHash: domain.ContentHash("FACTURA A ..."),
		State:       domain.DocStateReceived,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestDocumentRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	doc := sampleDocument(uuid.New())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_Create_DuplicateContentHash(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	doc := sampleDocument(uuid.New())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO documents")).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "uq_documents_tenant_content_hash"`))

	err := repo.Create(context.Background(), doc)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessing)
}

func TestDocumentRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	tenantID := uuid.New()
	docID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM documents WHERE id = $1 AND tenant_id = $2")).
		WithArgs(docID, tenantID).
		WillReturnRows(sqlmock.NewRows(documentColumns()))

	_, err := repo.GetByID(context.Background(), tenantID, docID)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepo_GetByContentHash(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	tenantID := uuid.New()
	doc := sampleDocument(tenantID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM documents WHERE tenant_id = $1 AND content_hash = $2")).
		WithArgs(tenantID, doc.ContentHash).
		WillReturnRows(documentRow(doc))

	got, err := repo.GetByContentHash(context.Background(), tenantID, doc.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, domain.DocStateReceived, got.State)
}

func TestDocumentRepo_Transition(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	tenantID := uuid.New()
	docID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET state = $1")).
		WithArgs(domain.DocStateClassifying, sqlmock.AnyArg(), docID, tenantID, domain.DocStateReceived).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), tenantID, docID,
		domain.DocStateReceived, domain.DocStateClassifying)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_Transition_LostRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	tenantID := uuid.New()
	docID := uuid.New()

	// The document is no longer in the expected source state: zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET state = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Transition(context.Background(), tenantID, docID,
		domain.DocStateReceived, domain.DocStateClassifying)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessing)
}

func TestDocumentRepo_SaveResult_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	doc := sampleDocument(uuid.New())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveResult(context.Background(), doc)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepo_ClaimReceived(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	doc := sampleDocument(uuid.New())
	doc.State = domain.DocStateClassifying

	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(domain.DocStateClassifying, sqlmock.AnyArg(), domain.DocStateReceived, 4).
		WillReturnRows(documentRow(doc))

	docs, err := repo.ClaimReceived(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
	assert.Equal(t, domain.DocStateClassifying, docs[0].State)
}

func TestDocumentRepo_CountBySource(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	tenantID := uuid.New()
	since := time.Now().AddDate(0, 0, -30)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT extraction_source, COUNT(*) FROM documents")).
		WithArgs(tenantID, domain.DocStateCompleted, since).
		WillReturnRows(sqlmock.NewRows([]string{"extraction_source", "count"}).
			AddRow("EXACT_CACHE", 7).
			AddRow("PROVIDER_CALL", 3))

	counts, err := repo.CountBySource(context.Background(), tenantID, since)
	require.NoError(t, err)
	assert.Equal(t, 7, counts[domain.SourceExactCache])
	assert.Equal(t, 3, counts[domain.SourceProviderCall])
	assert.Zero(t, counts[domain.SourceTemplateCache])
}

func TestDocumentRepo_UpdateFields(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	tenantID := uuid.New()
	docID := uuid.New()
	fields := []byte(`{"netoGravado":"1000.00"}`)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET extracted_fields = $1")).
		WithArgs(fields, sqlmock.AnyArg(), docID, tenantID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateFields(context.Background(), tenantID, docID, fields))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_UpdateFields_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET extracted_fields = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateFields(context.Background(), uuid.New(), uuid.New(), []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestDocumentRepo_RequeueStale(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	cutoff := time.Now().Add(-10 * time.Minute)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE documents SET state = $1")).
		WithArgs(domain.DocStateReceived, sqlmock.AnyArg(),
			domain.DocStateClassifying, domain.DocStateExtracting, cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RequeueStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentRepo_ListByState(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewDocumentRepo(db)
	tenantID := uuid.New()
	doc := sampleDocument(tenantID)
	doc.State = domain.DocStateFailed

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM documents WHERE tenant_id = $1 AND state = $2")).
		WithArgs(tenantID, domain.DocStateFailed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs(tenantID, domain.DocStateFailed, 50, 0).
		WillReturnRows(documentRow(doc))

	docs, total, err := repo.ListByState(context.Background(), tenantID, domain.DocStateFailed, 0, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}
