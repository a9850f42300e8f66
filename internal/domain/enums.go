package domain

// DocumentType classifies an Argentine fiscal document.
type DocumentType string

const (
	DocTypeFacturaA               DocumentType = "FACTURA_A"
	DocTypeFacturaB               DocumentType = "FACTURA_B"
	DocTypeFacturaC               DocumentType = "FACTURA_C"
	DocTypeNotaCredito            DocumentType = "NOTA_CREDITO"
	DocTypeDespachoAduana         DocumentType = "DESPACHO_ADUANA"
	DocTypeComprobanteImportacion DocumentType = "COMPROBANTE_IMPORTACION"
	DocTypeTicket                 DocumentType = "TICKET"
	DocTypeUnknown                DocumentType = "UNKNOWN"
)

// KnownDocumentTypes is the closed set a classifier answer must fall in.
var KnownDocumentTypes = map[DocumentType]bool{
	DocTypeFacturaA:               true,
	DocTypeFacturaB:               true,
	DocTypeFacturaC:               true,
	DocTypeNotaCredito:            true,
	DocTypeDespachoAduana:         true,
	DocTypeComprobanteImportacion: true,
	DocTypeTicket:                 true,
}

// DocumentState is the processing state machine value for a document.
type DocumentState string

const (
	DocStateReceived    DocumentState = "RECEIVED"
	DocStateClassifying DocumentState = "CLASSIFYING"
	DocStateExtracting  DocumentState = "EXTRACTING"
	DocStateCompleted   DocumentState = "COMPLETED"
	DocStateFailed      DocumentState = "FAILED"
)

// ExtractionSource records which tier produced a document's fields.
type ExtractionSource string

const (
	SourceExactCache    ExtractionSource = "EXACT_CACHE"
	SourceTemplateCache ExtractionSource = "TEMPLATE_CACHE"
	SourceProviderCall  ExtractionSource = "PROVIDER_CALL"
)

// ErrorKind attributes a FAILED document to one failure class.
type ErrorKind string

const (
	ErrKindClassificationUnavailable ErrorKind = "CLASSIFICATION_UNAVAILABLE"
	ErrKindExtractionUnavailable     ErrorKind = "EXTRACTION_UNAVAILABLE"
	ErrKindMalformedResponse         ErrorKind = "MALFORMED_RESPONSE"
	ErrKindRuleEngineInconsistency   ErrorKind = "RULE_ENGINE_INCONSISTENCY"
)

// PatternKind distinguishes the three learned pattern shapes.
type PatternKind string

const (
	PatternExactDocument  PatternKind = "EXACT_DOCUMENT"
	PatternVendorTemplate PatternKind = "VENDOR_TEMPLATE"
	PatternFieldRule      PatternKind = "FIELD_RULE"
)

// SuggestionState is the human-review state of a proposed field value.
type SuggestionState string

const (
	SuggestionPending  SuggestionState = "PENDING"
	SuggestionApproved SuggestionState = "APPROVED"
	SuggestionRejected SuggestionState = "REJECTED"
	SuggestionApplied  SuggestionState = "APPLIED"
)

// RetryMode controls where a manually retried FAILED document re-enters the
// pipeline.
type RetryMode string

const (
	// RetryReclassify re-runs classification from scratch.
	RetryReclassify RetryMode = "reclassify"
	// RetryReuseType keeps the last known document type and jumps straight
	// to extraction.
	RetryReuseType RetryMode = "reuse_type"
)

// UserRole defines the role hierarchy within a tenant.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)
