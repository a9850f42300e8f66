package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"facturio/internal/domain"
	"facturio/internal/port"
)

type patternRepo struct {
	db *sqlx.DB
}

// NewPatternRepo creates a new PostgreSQL-backed PatternRepository.
func NewPatternRepo(db *sqlx.DB) port.PatternRepository {
	return &patternRepo{db: db}
}

func (r *patternRepo) Create(ctx context.Context, p *domain.Pattern) error {
	query := `INSERT INTO patterns (
		id, tenant_id, kind, signature, payload,
		hit_count, confidence, active, last_used_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10, $11
	)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.TenantID, p.Kind, p.Signature, p.Payload,
		p.HitCount, p.Confidence, p.Active, p.LastUsedAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return domain.ErrPatternConflict
		}
		return fmt.Errorf("patternRepo.Create: %w", err)
	}
	return nil
}

func (r *patternRepo) GetByID(ctx context.Context, tenantID, patternID uuid.UUID) (*domain.Pattern, error) {
	var p domain.Pattern
	err := r.db.GetContext(ctx, &p,
		"SELECT * FROM patterns WHERE id = $1 AND tenant_id = $2", patternID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPatternNotFound
		}
		return nil, fmt.Errorf("patternRepo.GetByID: %w", err)
	}
	return &p, nil
}

func (r *patternRepo) GetBySignature(ctx context.Context, tenantID uuid.UUID, kind domain.PatternKind, signature string) (*domain.Pattern, error) {
	var p domain.Pattern
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM patterns
		 WHERE tenant_id = $1 AND kind = $2 AND signature = $3 AND active = TRUE`,
		tenantID, kind, signature)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPatternNotFound
		}
		return nil, fmt.Errorf("patternRepo.GetBySignature: %w", err)
	}
	return &p, nil
}

// Update persists a pattern mutation guarded by an optimistic hit-count
// check. A concurrent writer that already bumped the row makes the WHERE
// clause miss, which surfaces as ErrPatternConflict.
func (r *patternRepo) Update(ctx context.Context, p *domain.Pattern, expectedHitCount int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE patterns SET
			payload = $1, hit_count = $2, confidence = $3,
			last_used_at = $4, updated_at = $5
		 WHERE id = $6 AND tenant_id = $7 AND hit_count = $8`,
		p.Payload, p.HitCount, p.Confidence,
		p.LastUsedAt, p.UpdatedAt,
		p.ID, p.TenantID, expectedHitCount)
	if err != nil {
		return fmt.Errorf("patternRepo.Update: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrPatternConflict
	}
	return nil
}

func (r *patternRepo) Deactivate(ctx context.Context, tenantID, patternID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE patterns SET active = FALSE, updated_at = $1
		 WHERE id = $2 AND tenant_id = $3`,
		time.Now().UTC(), patternID, tenantID)
	if err != nil {
		return fmt.Errorf("patternRepo.Deactivate: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrPatternNotFound
	}
	return nil
}

func (r *patternRepo) SumHits(ctx context.Context, tenantID uuid.UUID, kind domain.PatternKind, since time.Time) (int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(hit_count), 0) FROM patterns
		 WHERE tenant_id = $1 AND kind = $2 AND last_used_at >= $3`,
		tenantID, kind, since)
	if err != nil {
		return 0, fmt.Errorf("patternRepo.SumHits: %w", err)
	}
	return total, nil
}

func (r *patternRepo) TopByHits(ctx context.Context, tenantID uuid.UUID, limit int) ([]domain.Pattern, error) {
	var patterns []domain.Pattern
	err := r.db.SelectContext(ctx, &patterns,
		`SELECT * FROM patterns WHERE tenant_id = $1 AND active = TRUE
		 ORDER BY hit_count DESC, last_used_at DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("patternRepo.TopByHits: %w", err)
	}
	return patterns, nil
}
