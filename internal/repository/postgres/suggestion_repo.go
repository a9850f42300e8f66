package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"facturio/internal/domain"
	"facturio/internal/port"
)

type suggestionRepo struct {
	db *sqlx.DB
}

// NewSuggestionRepo creates a new PostgreSQL-backed SuggestionRepository.
func NewSuggestionRepo(db *sqlx.DB) port.SuggestionRepository {
	return &suggestionRepo{db: db}
}

func (r *suggestionRepo) Create(ctx context.Context, s *domain.Suggestion) error {
	query := `INSERT INTO suggestions (
		id, tenant_id, document_id, pattern_id, rule_id,
		field_target, proposed_value, confidence, reasoning, state,
		decided_by, decided_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12, $13, $14
	)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.TenantID, s.DocumentID, s.PatternID, s.RuleID,
		s.FieldTarget, s.ProposedValue, s.Confidence, s.Reasoning, s.State,
		s.DecidedBy, s.DecidedAt, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("suggestionRepo.Create: %w", err)
	}
	return nil
}

func (r *suggestionRepo) GetByID(ctx context.Context, tenantID, suggestionID uuid.UUID) (*domain.Suggestion, error) {
	var s domain.Suggestion
	err := r.db.GetContext(ctx, &s,
		"SELECT * FROM suggestions WHERE id = $1 AND tenant_id = $2", suggestionID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("suggestionRepo.GetByID: %w", err)
	}
	return &s, nil
}

func (r *suggestionRepo) FindPending(ctx context.Context, tenantID, documentID uuid.UUID, fieldTarget string) (*domain.Suggestion, error) {
	var s domain.Suggestion
	err := r.db.GetContext(ctx, &s,
		`SELECT * FROM suggestions
		 WHERE tenant_id = $1 AND document_id = $2 AND field_target = $3 AND state = $4`,
		tenantID, documentID, fieldTarget, domain.SuggestionPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSuggestionNotFound
		}
		return nil, fmt.Errorf("suggestionRepo.FindPending: %w", err)
	}
	return &s, nil
}

func (r *suggestionRepo) List(ctx context.Context, tenantID uuid.UUID, filter port.SuggestionFilter, offset, limit int) ([]domain.Suggestion, int, error) {
	where := "tenant_id = $1"
	args := []interface{}{tenantID}

	if filter.State != "" {
		args = append(args, filter.State)
		where += fmt.Sprintf(" AND state = $%d", len(args))
	}
	if filter.DocumentID != nil {
		args = append(args, *filter.DocumentID)
		where += fmt.Sprintf(" AND document_id = $%d", len(args))
	}
	if filter.MinConfidence != nil {
		args = append(args, *filter.MinConfidence)
		where += fmt.Sprintf(" AND confidence >= $%d", len(args))
	}
	if filter.MaxConfidence != nil {
		args = append(args, *filter.MaxConfidence)
		where += fmt.Sprintf(" AND confidence <= $%d", len(args))
	}

	var total int
	err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM suggestions WHERE "+where, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("suggestionRepo.List count: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		"SELECT * FROM suggestions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		where, len(args)-1, len(args))

	var suggestions []domain.Suggestion
	err = r.db.SelectContext(ctx, &suggestions, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("suggestionRepo.List: %w", err)
	}
	return suggestions, total, nil
}

func (r *suggestionRepo) Update(ctx context.Context, s *domain.Suggestion) error {
	s.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE suggestions SET
			state = $1, decided_by = $2, decided_at = $3, updated_at = $4
		 WHERE id = $5 AND tenant_id = $6`,
		s.State, s.DecidedBy, s.DecidedAt, s.UpdatedAt,
		s.ID, s.TenantID)
	if err != nil {
		return fmt.Errorf("suggestionRepo.Update: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrSuggestionNotFound
	}
	return nil
}

func (r *suggestionRepo) CountByState(ctx context.Context, tenantID uuid.UUID) (*domain.SuggestionStats, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT state, COUNT(*), COALESCE(AVG(confidence), 0) FROM suggestions
		 WHERE tenant_id = $1 GROUP BY state`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("suggestionRepo.CountByState: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := &domain.SuggestionStats{}
	var confidenceSum float64
	var total int
	for rows.Next() {
		var state domain.SuggestionState
		var n int
		var avg float64
		if err := rows.Scan(&state, &n, &avg); err != nil {
			return nil, fmt.Errorf("suggestionRepo.CountByState scan: %w", err)
		}
		switch state {
		case domain.SuggestionPending:
			stats.Pending = n
		case domain.SuggestionApproved:
			stats.Approved = n
		case domain.SuggestionRejected:
			stats.Rejected = n
		case domain.SuggestionApplied:
			stats.Applied = n
		}
		confidenceSum += avg * float64(n)
		total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("suggestionRepo.CountByState rows: %w", err)
	}
	if total > 0 {
		stats.AvgConfidence = confidenceSum / float64(total)
	}
	return stats, nil
}
