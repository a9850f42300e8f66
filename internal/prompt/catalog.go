package prompt

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"facturio/internal/domain"
)

// Prompt keys. Keys are stable identifiers; the texts behind them can be
// overridden per deployment.
const (
	KeyClassifier     = "CLASIFICADOR_DOCUMENTO"
	KeyUniversal      = "EXTRACCION_UNIVERSAL"
	KeyFacturaA       = "EXTRACCION_FACTURA_A"
	KeyFacturaB       = "EXTRACCION_FACTURA_B"
	KeyFacturaC       = "EXTRACCION_FACTURA_C"
	KeyDespachoAduana = "EXTRACCION_DESPACHO_ADUANA"
)

// Placeholder substituted with the document's raw text at render time.
const Placeholder = "{{DOCUMENT_TEXT}}"

// extractionAliases maps document types without a dedicated extractor onto
// the closest specialized prompt. Notas de crédito share Factura A's layout,
// tickets are consumer-final like Factura C, and import receipts follow the
// customs format.
var extractionAliases = map[domain.DocumentType]domain.DocumentType{
	domain.DocTypeNotaCredito:            domain.DocTypeFacturaA,
	domain.DocTypeTicket:                 domain.DocTypeFacturaC,
	domain.DocTypeComprobanteImportacion: domain.DocTypeDespachoAduana,
}

// extractionKeys maps document types with a dedicated extractor to their key.
var extractionKeys = map[domain.DocumentType]string{
	domain.DocTypeFacturaA:       KeyFacturaA,
	domain.DocTypeFacturaB:       KeyFacturaB,
	domain.DocTypeFacturaC:       KeyFacturaC,
	domain.DocTypeDespachoAduana: KeyDespachoAduana,
}

// Snapshot is an immutable view of the catalog at one version. A pipeline run
// resolves all its prompts against a single snapshot, so a concurrent update
// never mixes prompt versions within one document.
type Snapshot struct {
	version int
	texts   map[string]string
}

// Version returns the snapshot's monotonically increasing version.
func (s *Snapshot) Version() int {
	return s.version
}

// Classifier returns the classification prompt rendered with the document text.
func (s *Snapshot) Classifier(rawText string) string {
	return render(s.texts[KeyClassifier], rawText)
}

// Extractor resolves the extraction prompt for a document type: the dedicated
// extractor when one exists, the aliased type's extractor otherwise, and the
// universal extractor as the fallback for everything else.
func (s *Snapshot) Extractor(docType domain.DocumentType, rawText string) (key string, prompt string) {
	if alias, ok := extractionAliases[docType]; ok {
		docType = alias
	}
	key, ok := extractionKeys[docType]
	if !ok {
		key = KeyUniversal
	}
	text, ok := s.texts[key]
	if !ok {
		key = KeyUniversal
		text = s.texts[KeyUniversal]
	}
	return key, render(text, rawText)
}

func render(template, rawText string) string {
	return strings.ReplaceAll(template, Placeholder, rawText)
}

// Catalog holds versioned prompt texts: the built-in set plus per-tenant
// overrides. Reads take a snapshot; updates copy-on-write a new version.
type Catalog struct {
	mu        sync.RWMutex
	version   int
	texts     map[string]string
	overrides map[uuid.UUID]map[string]string
}

// NewCatalog creates a Catalog seeded with the built-in prompts.
func NewCatalog() *Catalog {
	return &Catalog{
		version:   1,
		texts:     defaults(),
		overrides: map[uuid.UUID]map[string]string{},
	}
}

// Snapshot returns an immutable view of the prompt set as the given tenant
// sees it: that tenant's overrides layered over the built-in texts.
func (c *Catalog) Snapshot(tenantID uuid.UUID) *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tenant := c.overrides[tenantID]
	if len(tenant) == 0 {
		return &Snapshot{version: c.version, texts: c.texts}
	}

	merged := make(map[string]string, len(c.texts))
	for k, v := range c.texts {
		merged[k] = v
	}
	for k, v := range tenant {
		merged[k] = v
	}
	return &Snapshot{version: c.version, texts: merged}
}

// Update replaces the text for a key for one tenant and bumps the catalog
// version. Other tenants keep seeing the built-in text. The text must contain
// the document placeholder; a prompt without it would silently classify
// nothing. Unknown keys are rejected.
func (c *Catalog) Update(tenantID uuid.UUID, key, text string) (int, error) {
	if _, ok := defaults()[key]; !ok {
		return 0, domain.ErrPromptNotFound
	}
	if !strings.Contains(text, Placeholder) {
		return 0, domain.ErrPromptMissingPlaceholder
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]string, len(c.overrides[tenantID])+1)
	for k, v := range c.overrides[tenantID] {
		next[k] = v
	}
	next[key] = text
	c.overrides[tenantID] = next
	c.version++
	return c.version, nil
}

// Version returns the current catalog version.
func (c *Catalog) Version() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Keys returns the catalog's prompt keys.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(defaults()))
	for k := range defaults() {
		keys = append(keys, k)
	}
	return keys
}
