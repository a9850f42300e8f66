package pattern

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"facturio/internal/domain"
)

// TemplatePayload is the tier-2 pattern payload for one issuer/type pair.
// Statics are fields that stay constant across a vendor's documents; anchors
// record the label text that precedes each variable field in the vendor's
// layout, so the value can be re-located in a new document of the same shape.
type TemplatePayload struct {
	DocumentType domain.DocumentType `json:"documentType"`
	Statics      TemplateStatics     `json:"statics"`
	Anchors      map[string]string   `json:"anchors"`
}

// TemplateStatics holds the vendor-constant fields.
type TemplateStatics struct {
	CUIT            string `json:"cuit"`
	RazonSocial     string `json:"razonSocial"`
	TipoComprobante string `json:"tipoComprobante"`
	Moneda          string `json:"moneda,omitempty"`
}

// Variable fields a template can anchor. Each has a value regex matching how
// the field appears in Argentine fiscal documents.
const (
	fieldFecha             = "fecha"
	fieldImporte           = "importe"
	fieldNumeroComprobante = "numeroComprobante"
	fieldCAE               = "cae"
)

var (
	fechaRE       = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{2}[/-]\d{2}[/-]\d{4}`)
	importeRE     = regexp.MustCompile(`-?\$?\s*\d{1,3}(?:\.\d{3})*(?:,\d{1,2})?|-?\$?\s*\d+(?:\.\d{1,2})?`)
	comprobanteRE = regexp.MustCompile(`\d{4,5}-\d{8}`)
	caeRE         = regexp.MustCompile(`\d{14}`)

	// Standard CUIT shape, with a fallback for unpunctuated 11-digit runs.
	cuitRE     = regexp.MustCompile(`\d{2}-\d{8}-\d`)
	cuitBareRE = regexp.MustCompile(`(?:CUIT|C\.U\.I\.T\.?)[\s:Nº°]*(\d{11})`)
)

var fieldPatterns = map[string]*regexp.Regexp{
	fieldFecha:             fechaRE,
	fieldImporte:           importeRE,
	fieldNumeroComprobante: comprobanteRE,
	fieldCAE:               caeRE,
}

// DetectCUIT returns the first issuer CUIT found in the raw text, formatted
// XX-XXXXXXXX-X, or "" when none is present.
func DetectCUIT(rawText string) string {
	if m := cuitRE.FindString(rawText); m != "" {
		return m
	}
	if m := cuitBareRE.FindStringSubmatch(rawText); m != nil {
		d := m[1]
		return d[:2] + "-" + d[2:10] + "-" + d[10:]
	}
	return ""
}

// DeriveTemplate builds a vendor template from a document that was extracted
// by a provider. Returns false when the document's layout gives no usable
// anchors for the date and total; such documents cannot seed a template.
func DeriveTemplate(rawText string, fields *domain.ExtractedFields, docType domain.DocumentType) (*TemplatePayload, bool) {
	anchors := map[string]string{}

	// Anchor each field at the occurrence that reproduces the value the
	// provider extracted; the first regex match anywhere would latch onto
	// unrelated digit runs.
	locate := func(field string, matches func(string) bool) {
		re := fieldPatterns[field]
		for _, loc := range re.FindAllStringIndex(rawText, -1) {
			if !matches(rawText[loc[0]:loc[1]]) {
				continue
			}
			if label := labelBefore(rawText, loc[0]); label != "" {
				anchors[field] = label
				return
			}
		}
	}

	if fields.Fecha != "" {
		locate(fieldFecha, func(v string) bool { return NormalizeFecha(v) == fields.Fecha })
	}
	if !fields.Importe.IsZero() {
		locate(fieldImporte, func(v string) bool {
			amount, err := ParseAmount(v)
			return err == nil && amount.Equal(fields.Importe)
		})
	}
	if fields.NumeroComprobante != "" {
		locate(fieldNumeroComprobante, func(v string) bool { return v == fields.NumeroComprobante })
	}
	if fields.CAE != "" {
		locate(fieldCAE, func(v string) bool { return v == fields.CAE })
	}

	if anchors[fieldFecha] == "" || anchors[fieldImporte] == "" {
		return nil, false
	}

	return &TemplatePayload{
		DocumentType: docType,
		Statics: TemplateStatics{
			CUIT:            fields.CUIT,
			RazonSocial:     fields.RazonSocial,
			TipoComprobante: fields.TipoComprobante,
			Moneda:          fields.Moneda,
		},
		Anchors: anchors,
	}, true
}

// Apply runs the template against a new document's raw text. Returns false
// when a required field (date, total) cannot be located; the caller treats
// that as a cache miss, never as a hard failure.
func (t *TemplatePayload) Apply(rawText string) (*domain.ExtractedFields, bool) {
	fields := &domain.ExtractedFields{
		CUIT:            t.Statics.CUIT,
		RazonSocial:     t.Statics.RazonSocial,
		TipoComprobante: t.Statics.TipoComprobante,
		Moneda:          t.Statics.Moneda,
	}

	for field, label := range t.Anchors {
		value, ok := findAfterLabel(rawText, label, fieldPatterns[field])
		if !ok {
			continue
		}
		switch field {
		case fieldFecha:
			fields.Fecha = NormalizeFecha(value)
		case fieldImporte:
			amount, err := ParseAmount(value)
			if err != nil {
				continue
			}
			fields.Importe = amount
		case fieldNumeroComprobante:
			fields.NumeroComprobante = value
		case fieldCAE:
			fields.CAE = value
		}
	}

	if fields.Fecha == "" || fields.Importe.IsZero() || fields.CUIT == "" {
		return nil, false
	}
	return fields, true
}

// labelBefore extracts the label text immediately preceding a value position,
// bounded to the same line.
func labelBefore(text string, pos int) string {
	start := strings.LastIndexByte(text[:pos], '\n') + 1
	window := text[start:pos]
	if len(window) > 40 {
		window = window[len(window)-40:]
	}
	label := strings.Trim(window, " \t:$#Nº°.-")
	if idx := strings.LastIndexAny(label, ":|"); idx >= 0 {
		label = strings.TrimSpace(label[idx+1:])
	}
	// A usable anchor needs letters; bare punctuation or digits match too
	// many positions.
	if !strings.ContainsFunc(label, isLetter) {
		return ""
	}
	return label
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= 0x00C0
}

// findAfterLabel locates the first regex match in a bounded window after the
// label's first case-insensitive occurrence.
func findAfterLabel(text, label string, re *regexp.Regexp) (string, bool) {
	idx := indexFold(text, label)
	if idx < 0 {
		return "", false
	}
	window := text[idx+len(label):]
	if len(window) > 120 {
		window = window[:120]
	}
	m := re.FindString(window)
	if m == "" {
		return "", false
	}
	return strings.TrimLeft(strings.TrimSpace(m), "$ "), true
}

func indexFold(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

// ParseAmount parses a monetary value in either Argentine ("1.234,56") or
// plain ("1234.56") notation.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "$"))
	if strings.ContainsRune(s, ',') {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return decimal.NewFromString(s)
}

// NormalizeFecha converts DD/MM/YYYY and DD-MM-YYYY dates to YYYY-MM-DD.
// Values already in ISO form pass through unchanged.
func NormalizeFecha(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 10 && s[4] == '-' && s[7] == '-' {
		return s
	}
	if len(s) == 10 && (s[2] == '/' || s[2] == '-') && (s[5] == '/' || s[5] == '-') {
		return s[6:10] + "-" + s[3:5] + "-" + s[0:2]
	}
	return s
}
