package postgres_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturio/internal/domain"
	"facturio/internal/repository/postgres"
)

func patternColumns() []string {
	return []string{
		"id", "tenant_id", "kind", "signature", "payload",
		"hit_count", "confidence", "active", "last_used_at", "created_at", "updated_at",
	}
}

func samplePattern(tenantID uuid.UUID) *domain.Pattern {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Pattern{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Kind:       domain.PatternVendorTemplate,
		Signature:  "30712345678|FACTURA_A",
		Payload:    []byte(`{"documentType":"FACTURA_A"}`),
		HitCount:   3,
		Confidence: 0.8,
		Active:     true,
		LastUsedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func patternRow(p *domain.Pattern) *sqlmock.Rows {
	return sqlmock.NewRows(patternColumns()).AddRow(
		p.ID, p.TenantID, p.Kind, p.Signature, []byte(p.Payload),
		p.HitCount, p.Confidence, p.Active, p.LastUsedAt, p.CreatedAt, p.UpdatedAt,
	)
}

func TestPatternRepo_Create_Duplicate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPatternRepo(db)
	p := samplePattern(uuid.New())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO patterns")).
		WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "uq_patterns_tenant_kind_signature"`))

	err := repo.Create(context.Background(), p)
	assert.ErrorIs(t, err, domain.ErrPatternConflict)
}

func TestPatternRepo_GetBySignature(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPatternRepo(db)
	p := samplePattern(uuid.New())

	mock.ExpectQuery(regexp.QuoteMeta("AND signature = $3 AND active = TRUE")).
		WithArgs(p.TenantID, p.Kind, p.Signature).
		WillReturnRows(patternRow(p))

	got, err := repo.GetBySignature(context.Background(), p.TenantID, p.Kind, p.Signature)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, 0.8, got.Confidence)
}

func TestPatternRepo_GetBySignature_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPatternRepo(db)
	tenantID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("AND signature = $3 AND active = TRUE")).
		WillReturnRows(sqlmock.NewRows(patternColumns()))

	_, err := repo.GetBySignature(context.Background(), tenantID,
		domain.PatternVendorTemplate, "unknown|FACTURA_A")
	assert.ErrorIs(t, err, domain.ErrPatternNotFound)
}

func TestPatternRepo_Update(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPatternRepo(db)
	p := samplePattern(uuid.New())

	mock.ExpectExec(regexp.QuoteMeta("AND hit_count = $8")).
		WithArgs([]byte(p.Payload), p.HitCount, p.Confidence,
			p.LastUsedAt, p.UpdatedAt, p.ID, p.TenantID, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), p, 2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPatternRepo_Update_OptimisticConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPatternRepo(db)
	p := samplePattern(uuid.New())

	// A concurrent writer already bumped the hit count: zero rows.
	mock.ExpectExec(regexp.QuoteMeta("AND hit_count = $8")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), p, 2)
	assert.ErrorIs(t, err, domain.ErrPatternConflict)
}

func TestPatternRepo_Deactivate_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPatternRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE patterns SET active = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Deactivate(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrPatternNotFound)
}

func TestPatternRepo_TopByHits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPatternRepo(db)
	tenantID := uuid.New()
	p := samplePattern(tenantID)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY hit_count DESC, last_used_at DESC LIMIT $2")).
		WithArgs(tenantID, 10).
		WillReturnRows(patternRow(p))

	patterns, err := repo.TopByHits(context.Background(), tenantID, 10)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, p.Signature, patterns[0].Signature)
}

func TestPatternRepo_SumHits(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewPatternRepo(db)
	tenantID := uuid.New()
	since := time.Now().AddDate(0, 0, -30)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(hit_count), 0) FROM patterns")).
		WithArgs(tenantID, domain.PatternExactDocument, since).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(17))

	total, err := repo.SumHits(context.Background(), tenantID, domain.PatternExactDocument, since)
	require.NoError(t, err)
	assert.Equal(t, 17, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
