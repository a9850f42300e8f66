package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Document represents one ingested fiscal document moving through the
// classification/extraction pipeline.
type Document struct {
	ID                       uuid.UUID        `db:"id" json:"id"`
	TenantID                 uuid.UUID        `db:"tenant_id" json:"tenant_id"`
	RawText                  string           `db:"raw_text" json:"raw_text"`
	ContentHash              string           `db:"content_hash" json:"content_hash"`
	DocumentType             DocumentType     `db:"document_type" json:"document_type"`
	Subtypes                 json.RawMessage  `db:"subtypes" json:"subtypes"`
	ClassificationConfidence float64          `db:"classification_confidence" json:"classification_confidence"`
	ExtractedFields          json.RawMessage  `db:"extracted_fields" json:"extracted_fields,omitempty"`
	ExtractionSource         ExtractionSource `db:"extraction_source" json:"extraction_source,omitempty"`
	State                    DocumentState    `db:"state" json:"state"`
	ErrorKind                ErrorKind        `db:"error_kind" json:"error_kind,omitempty"`
	ErrorReason              string           `db:"error_reason" json:"error_reason,omitempty"`
	Warnings                 json.RawMessage  `db:"warnings" json:"warnings,omitempty"`
	Attempts                 int              `db:"attempts" json:"attempts"`
	CreatedAt                time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time        `db:"updated_at" json:"updated_at"`
	CompletedAt              *time.Time       `db:"completed_at" json:"completed_at,omitempty"`
}

// ContentHash computes the stable content hash of a document's raw text.
// Whitespace runs are collapsed so that OCR re-runs with different padding
// still hash identically.
func ContentHash(rawText string) string {
	normalized := strings.Join(strings.Fields(rawText), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// LineItem is one row of a document's product/service detail table.
type LineItem struct {
	Cantidad       decimal.Decimal `json:"cantidad"`
	Descripcion    string          `json:"descripcion"`
	PrecioUnitario decimal.Decimal `json:"precioUnitario"`
	AlicuotaIVA    decimal.Decimal `json:"alicuotaIVA"`
	ImporteIVA     decimal.Decimal `json:"importeIVA"`
	Total          decimal.Decimal `json:"total"`
}

// TaxEntry is one itemized tax, perception or withholding. Entries are never
// pre-summed; the header Impuestos carries the sum.
type TaxEntry struct {
	Tipo     string          `json:"tipo"`
	Alicuota decimal.Decimal `json:"alicuota"`
	Importe  decimal.Decimal `json:"importe"`
}

// ExtractedFields is the normalized shape of an Argentine fiscal document.
// Field names follow the extraction prompt contract.
type ExtractedFields struct {
	Fecha             string          `json:"fecha"`
	Importe           decimal.Decimal `json:"importe"`
	CUIT              string          `json:"cuit"`
	NumeroComprobante string          `json:"numeroComprobante"`
	CAE               string          `json:"cae"`
	TipoComprobante   string          `json:"tipoComprobante"`
	RazonSocial       string          `json:"razonSocial"`
	NetoGravado       decimal.Decimal `json:"netoGravado"`
	Exento            decimal.Decimal `json:"exento"`
	Impuestos         decimal.Decimal `json:"impuestos"`
	Cupon             string          `json:"cupon"`
	Moneda            string          `json:"moneda,omitempty"`
	LineItems         []LineItem      `json:"lineItems,omitempty"`
	ImpuestosDetalle  []TaxEntry      `json:"impuestosDetalle,omitempty"`
}

// TaxBreakdownSum returns the sum of the itemized tax entries.
func (f *ExtractedFields) TaxBreakdownSum() decimal.Decimal {
	sum := decimal.Zero
	for _, t := range f.ImpuestosDetalle {
		sum = sum.Add(t.Importe)
	}
	return sum
}

// TaxBreakdownConsistent reports whether the itemized taxes approximate the
// header total within the given relative tolerance. Documents with an empty
// breakdown are trivially consistent; source documents can themselves be
// inconsistent, so callers flag rather than fail on a false result.
func (f *ExtractedFields) TaxBreakdownConsistent(tolerance float64) bool {
	if len(f.ImpuestosDetalle) == 0 {
		return true
	}
	sum := f.TaxBreakdownSum()
	if f.Impuestos.IsZero() {
		return sum.IsZero()
	}
	diff := sum.Sub(f.Impuestos).Abs()
	limit := f.Impuestos.Abs().Mul(decimal.NewFromFloat(tolerance))
	return diff.LessThanOrEqual(limit)
}

// Pattern is a learned, reusable extraction shortcut. Patterns are owned by
// the pattern cache: no other component mutates them directly.
type Pattern struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	TenantID   uuid.UUID       `db:"tenant_id" json:"tenant_id"`
	Kind       PatternKind     `db:"kind" json:"kind"`
	Signature  string          `db:"signature" json:"signature"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	HitCount   int             `db:"hit_count" json:"hit_count"`
	Confidence float64         `db:"confidence" json:"confidence"`
	Active     bool            `db:"active" json:"active"`
	LastUsedAt time.Time       `db:"last_used_at" json:"last_used_at"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// VendorSignature builds the tier-2 pattern signature for an issuer/type pair.
func VendorSignature(cuit string, docType DocumentType) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, cuit)
	return digits + "|" + string(docType)
}

// FieldRuleSignature builds the field-rule pattern signature for a derived
// field and the shape of its value.
func FieldRuleSignature(field, shape string) string {
	return field + "|" + shape
}

// Suggestion is a proposed field value awaiting human review before it is
// applied and learned from.
type Suggestion struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TenantID      uuid.UUID       `db:"tenant_id" json:"tenant_id"`
	DocumentID    *uuid.UUID      `db:"document_id" json:"document_id,omitempty"`
	PatternID     *uuid.UUID      `db:"pattern_id" json:"pattern_id,omitempty"`
	RuleID        *uuid.UUID      `db:"rule_id" json:"rule_id,omitempty"`
	FieldTarget   string          `db:"field_target" json:"field_target"`
	ProposedValue json.RawMessage `db:"proposed_value" json:"proposed_value"`
	Confidence    float64         `db:"confidence" json:"confidence"`
	Reasoning     string          `db:"reasoning" json:"reasoning"`
	State         SuggestionState `db:"state" json:"state"`
	DecidedBy     *uuid.UUID      `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt     *time.Time      `db:"decided_at" json:"decided_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// CacheStats is the derived cache effectiveness summary for a tenant.
type CacheStats struct {
	TotalRequests        int             `json:"total_requests"`
	ExactHits            int             `json:"exact_hits"`
	TemplateHits         int             `json:"template_hits"`
	ProviderCalls        int             `json:"provider_calls"`
	HitRate              float64         `json:"hit_rate"`
	EstimatedSavingsUSD  decimal.Decimal `json:"estimated_savings_usd"`
	EstimatedSavingsSecs float64         `json:"estimated_savings_secs"`
	TopPatterns          []Pattern       `json:"top_patterns"`
}

// SuggestionStats tallies suggestions per review state.
type SuggestionStats struct {
	Pending       int     `json:"pending"`
	Approved      int     `json:"approved"`
	Rejected      int     `json:"rejected"`
	Applied       int     `json:"applied"`
	AvgConfidence float64 `json:"avg_confidence"`
}
