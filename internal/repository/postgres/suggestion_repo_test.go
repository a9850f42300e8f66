package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturio/internal/domain"
	"facturio/internal/port"
	"facturio/internal/repository/postgres"
)

func suggestionColumns() []string {
	return []string{
		"id", "tenant_id", "document_id", "pattern_id", "rule_id",
		"field_target", "proposed_value", "confidence", "reasoning", "state",
		"decided_by", "decided_at", "created_at", "updated_at",
	}
}

func sampleSuggestion(tenantID uuid.UUID) *domain.Suggestion {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Suggestion{
		ID:            uuid.New(),
		TenantID:      tenantID,
		FieldTarget:   "netoGravado",
		ProposedValue: []byte(`"1000"`),
		Confidence:    0.8,
		Reasoning:     "importe / 1.21",
		State:         domain.SuggestionPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func suggestionRow(s *domain.Suggestion) *sqlmock.Rows {
	return sqlmock.NewRows(suggestionColumns()).AddRow(
		s.ID, s.TenantID, s.DocumentID, s.PatternID, s.RuleID,
		s.FieldTarget, []byte(s.ProposedValue), s.Confidence, s.Reasoning, s.State,
		s.DecidedBy, s.DecidedAt, s.CreatedAt, s.UpdatedAt,
	)
}

func TestSuggestionRepo_List_StateFilter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewSuggestionRepo(db)
	tenantID := uuid.New()
	s := sampleSuggestion(tenantID)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM suggestions WHERE tenant_id = $1 AND state = $2")).
		WithArgs(tenantID, domain.SuggestionPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $3 OFFSET $4")).
		WithArgs(tenantID, domain.SuggestionPending, 50, 0).
		WillReturnRows(suggestionRow(s))

	got, total, err := repo.List(context.Background(), tenantID,
		port.SuggestionFilter{State: domain.SuggestionPending}, 0, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, got, 1)
	assert.Equal(t, s.ID, got[0].ID)
}

func TestSuggestionRepo_List_ConfidenceRange(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewSuggestionRepo(db)
	tenantID := uuid.New()
	min, max := 0.5, 0.9

	mock.ExpectQuery(regexp.QuoteMeta("AND confidence >= $2 AND confidence <= $3")).
		WithArgs(tenantID, min, max).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $4 OFFSET $5")).
		WithArgs(tenantID, min, max, 20, 10).
		WillReturnRows(sqlmock.NewRows(suggestionColumns()))

	_, total, err := repo.List(context.Background(), tenantID,
		port.SuggestionFilter{MinConfidence: &min, MaxConfidence: &max}, 10, 20)
	require.NoError(t, err)
	assert.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSuggestionRepo_Update_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewSuggestionRepo(db)
	s := sampleSuggestion(uuid.New())

	mock.ExpectExec(regexp.QuoteMeta("UPDATE suggestions SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), s)
	assert.ErrorIs(t, err, domain.ErrSuggestionNotFound)
}

func TestSuggestionRepo_CountByState(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewSuggestionRepo(db)
	tenantID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY state")).
		WithArgs(tenantID).
		WillReturnRows(sqlmock.NewRows([]string{"state", "count", "avg"}).
			AddRow("PENDING", 3, 0.7).
			AddRow("APPLIED", 1, 0.9))

	stats, err := repo.CountByState(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Applied)
	assert.Zero(t, stats.Rejected)
	// Weighted across states: (0.7*3 + 0.9*1) / 4.
	assert.InDelta(t, 0.75, stats.AvgConfidence, 1e-9)
}

func TestSuggestionRepo_FindPending(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewSuggestionRepo(db)
	tenantID := uuid.New()
	docID := uuid.New()
	s := sampleSuggestion(tenantID)
	s.DocumentID = &docID

	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE tenant_id = $1 AND document_id = $2 AND field_target = $3 AND state = $4")).
		WithArgs(tenantID, docID, "netoGravado", domain.SuggestionPending).
		WillReturnRows(suggestionRow(s))

	got, err := repo.FindPending(context.Background(), tenantID, docID, "netoGravado")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSuggestionRepo_FindPending_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := postgres.NewSuggestionRepo(db)
	tenantID := uuid.New()
	docID := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(
		"WHERE tenant_id = $1 AND document_id = $2 AND field_target = $3 AND state = $4")).
		WithArgs(tenantID, docID, "exento", domain.SuggestionPending).
		WillReturnRows(sqlmock.NewRows(suggestionColumns()))

	_, err := repo.FindPending(context.Background(), tenantID, docID, "exento")
	assert.ErrorIs(t, err, domain.ErrSuggestionNotFound)
}
