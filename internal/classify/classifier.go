package classify

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"facturio/internal/domain"
	"facturio/internal/port"
	"facturio/internal/prompt"
	"facturio/internal/provider"
)

// Result is the outcome of classifying one document.
type Result struct {
	Type       domain.DocumentType
	Confidence float64
	Subtypes   []string
}

// Classifier determines a document's fiscal type from its raw text using a
// language-model provider.
type Classifier struct {
	gateway    port.ProviderGateway
	providerID string
}

// NewClassifier creates a Classifier bound to the given provider.
func NewClassifier(gateway port.ProviderGateway, providerID string) *Classifier {
	return &Classifier{
		gateway:    gateway,
		providerID: providerID,
	}
}

// classifierResponse models the JSON object the classification prompt asks for.
type classifierResponse struct {
	Tipo      string   `json:"tipo"`
	Confianza float64  `json:"confianza"`
	Subtipos  []string `json:"subtipos"`
}

// Classify sends the classification prompt and normalizes the response. An
// unrecognized type string degrades to UNKNOWN with the reported confidence
// kept, never to an error; the pipeline decides what to do with low trust.
func (c *Classifier) Classify(ctx context.Context, snap *prompt.Snapshot, rawText string) (*Result, error) {
	completion, err := c.gateway.Call(ctx, c.providerID, snap.Classifier(rawText))
	if err != nil {
		return nil, err
	}

	raw, err := provider.ExtractJSON(completion)
	if err != nil {
		return nil, err
	}

	var resp classifierResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, domain.ErrMalformedResponse
	}

	docType := domain.DocumentType(strings.ToUpper(strings.TrimSpace(resp.Tipo)))
	if _, ok := domain.KnownDocumentTypes[docType]; !ok {
		log.Printf("classify.Classifier: unknown type %q from provider, degrading to UNKNOWN", resp.Tipo)
		docType = domain.DocTypeUnknown
	}

	confidence := resp.Confianza
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &Result{
		Type:       docType,
		Confidence: confidence,
		Subtypes:   resp.Subtipos,
	}, nil
}
