package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"facturio/internal/domain"
	"facturio/internal/port"
)

type documentRepo struct {
	db *sqlx.DB
}

// NewDocumentRepo creates a new PostgreSQL-backed DocumentRepository.
func NewDocumentRepo(db *sqlx.DB) port.DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, doc *domain.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	query := `INSERT INTO documents (
		id, tenant_id, raw_text, content_hash, document_type, subtypes,
		classification_confidence, extracted_fields, extraction_source,
		state, error_kind, error_reason, warnings, attempts,
		created_at, updated_at, completed_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9,
		$10, $11, $12, $13, $14,
		$15, $16, $17
	)`

	_, err := r.db.ExecContext(ctx, query,
		doc.ID, doc.TenantID, doc.RawText, doc.ContentHash, doc.DocumentType, doc.Subtypes,
		doc.ClassificationConfidence, doc.ExtractedFields, doc.ExtractionSource,
		doc.State, doc.ErrorKind, doc.ErrorReason, doc.Warnings, doc.Attempts,
		doc.CreatedAt, doc.UpdatedAt, doc.CompletedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") && strings.Contains(err.Error(), "content_hash") {
			return domain.ErrAlreadyProcessing
		}
		return fmt.Errorf("documentRepo.Create: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, tenantID, docID uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.GetContext(ctx, &doc,
		"SELECT * FROM documents WHERE id = $1 AND tenant_id = $2", docID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("documentRepo.GetByID: %w", err)
	}
	return &doc, nil
}

func (r *documentRepo) GetByContentHash(ctx context.Context, tenantID uuid.UUID, hash string) (*domain.Document, error) {
	var doc domain.Document
	err := r.db.GetContext(ctx, &doc,
		"SELECT * FROM documents WHERE tenant_id = $1 AND content_hash = $2", tenantID, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("documentRepo.GetByContentHash: %w", err)
	}
	return &doc, nil
}

// Transition is the state machine's compare-and-swap. The WHERE clause on the
// source state makes concurrent claimers race on the row update; the loser
// sees zero rows and gets ErrAlreadyProcessing.
func (r *documentRepo) Transition(ctx context.Context, tenantID, docID uuid.UUID, from, to domain.DocumentState) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET state = $1, updated_at = $2
		 WHERE id = $3 AND tenant_id = $4 AND state = $5`,
		to, time.Now().UTC(), docID, tenantID, from)
	if err != nil {
		return fmt.Errorf("documentRepo.Transition: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrAlreadyProcessing
	}
	return nil
}

func (r *documentRepo) UpdateClassification(ctx context.Context, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET
			document_type = $1, subtypes = $2, classification_confidence = $3,
			attempts = $4, updated_at = $5
		 WHERE id = $6 AND tenant_id = $7`,
		doc.DocumentType, doc.Subtypes, doc.ClassificationConfidence,
		doc.Attempts, doc.UpdatedAt,
		doc.ID, doc.TenantID)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateClassification: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) SaveResult(ctx context.Context, doc *domain.Document) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET
			document_type = $1, subtypes = $2, classification_confidence = $3,
			extracted_fields = $4, extraction_source = $5, warnings = $6,
			state = $7, error_kind = '', error_reason = '', attempts = $8,
			updated_at = $9, completed_at = $10
		 WHERE id = $11 AND tenant_id = $12`,
		doc.DocumentType, doc.Subtypes, doc.ClassificationConfidence,
		doc.ExtractedFields, doc.ExtractionSource, doc.Warnings,
		doc.State, doc.Attempts,
		doc.UpdatedAt, doc.CompletedAt,
		doc.ID, doc.TenantID)
	if err != nil {
		return fmt.Errorf("documentRepo.SaveResult: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) UpdateFields(ctx context.Context, tenantID, docID uuid.UUID, fields json.RawMessage) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET extracted_fields = $1, updated_at = $2
		 WHERE id = $3 AND tenant_id = $4`,
		fields, time.Now().UTC(), docID, tenantID)
	if err != nil {
		return fmt.Errorf("documentRepo.UpdateFields: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) MarkFailed(ctx context.Context, doc *domain.Document) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET
			state = $1, error_kind = $2, error_reason = $3,
			attempts = $4, updated_at = $5
		 WHERE id = $6 AND tenant_id = $7`,
		domain.DocStateFailed, doc.ErrorKind, doc.ErrorReason,
		doc.Attempts, doc.UpdatedAt,
		doc.ID, doc.TenantID)
	if err != nil {
		return fmt.Errorf("documentRepo.MarkFailed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *documentRepo) ListByState(ctx context.Context, tenantID uuid.UUID, state domain.DocumentState, offset, limit int) ([]domain.Document, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM documents WHERE tenant_id = $1 AND state = $2", tenantID, state)
	if err != nil {
		return nil, 0, fmt.Errorf("documentRepo.ListByState count: %w", err)
	}

	var docs []domain.Document
	err = r.db.SelectContext(ctx, &docs,
		`SELECT * FROM documents WHERE tenant_id = $1 AND state = $2
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		tenantID, state, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("documentRepo.ListByState: %w", err)
	}
	return docs, total, nil
}

// ClaimReceived atomically flips up to limit RECEIVED documents to
// CLASSIFYING and returns them. FOR UPDATE SKIP LOCKED lets concurrent
// instances claim disjoint batches.
func (r *documentRepo) ClaimReceived(ctx context.Context, limit int) ([]domain.Document, error) {
	var docs []domain.Document
	err := r.db.SelectContext(ctx, &docs,
		`UPDATE documents SET state = $1, updated_at = $2
		 WHERE id IN (
			SELECT id FROM documents WHERE state = $3
			ORDER BY created_at ASC LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING *`,
		domain.DocStateClassifying, time.Now().UTC(), domain.DocStateReceived, limit)
	if err != nil {
		return nil, fmt.Errorf("documentRepo.ClaimReceived: %w", err)
	}
	return docs, nil
}

// RequeueStale flips in-flight documents whose worker never finished back to
// RECEIVED so the next poll picks them up again.
func (r *documentRepo) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET state = $1, updated_at = $2
		 WHERE state IN ($3, $4) AND updated_at < $5`,
		domain.DocStateReceived, time.Now().UTC(),
		domain.DocStateClassifying, domain.DocStateExtracting, cutoff)
	if err != nil {
		return 0, fmt.Errorf("documentRepo.RequeueStale: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (r *documentRepo) CountBySource(ctx context.Context, tenantID uuid.UUID, since time.Time) (map[domain.ExtractionSource]int, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT extraction_source, COUNT(*) FROM documents
		 WHERE tenant_id = $1 AND state = $2 AND completed_at >= $3
		 GROUP BY extraction_source`,
		tenantID, domain.DocStateCompleted, since)
	if err != nil {
		return nil, fmt.Errorf("documentRepo.CountBySource: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[domain.ExtractionSource]int{}
	for rows.Next() {
		var source domain.ExtractionSource
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("documentRepo.CountBySource scan: %w", err)
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("documentRepo.CountBySource rows: %w", err)
	}
	return counts, nil
}
