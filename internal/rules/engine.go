package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"facturio/internal/config"
	"facturio/internal/domain"
)

// Derivation is a field value the engine computed rather than extracted. Each
// carries a confidence so the caller can route uncertain derivations to human
// review instead of silently applying them.
type Derivation struct {
	Field      string
	Value      string
	Confidence float64
	Reasoning  string
}

// Result is the outcome of running the engine over one document's fields.
type Result struct {
	Fields      *domain.ExtractedFields
	Warnings    []string
	Derivations []Derivation
}

// Engine applies deterministic post-extraction rules. The same rules run for
// all extraction sources, so a cache hit and a provider call converge on the
// same normalized shape.
type Engine struct {
	cfg config.RulesConfig
}

// NewEngine creates an Engine with the given tunables.
func NewEngine(cfg config.RulesConfig) *Engine {
	return &Engine{cfg: cfg}
}

// taxInclusiveTypes are document types whose prices carry IVA without
// itemizing it, making the net amount derivable from the total.
var taxInclusiveTypes = map[domain.DocumentType]bool{
	domain.DocTypeFacturaB: true,
	domain.DocTypeFacturaC: true,
	domain.DocTypeTicket:   true,
}

var cuitDigitsRE = regexp.MustCompile(`^\d{11}$`)

// Apply normalizes and completes the extracted fields for a document type.
// The input is not mutated.
func (e *Engine) Apply(docType domain.DocumentType, in *domain.ExtractedFields) *Result {
	fields := *in
	res := &Result{Fields: &fields}

	fields.Fecha = normalizeFecha(fields.Fecha)
	fields.CUIT = normalizeCUIT(fields.CUIT)
	if fields.Moneda == "" {
		fields.Moneda = "ARS"
	}

	// Header tax total from the itemized breakdown when the extractor left
	// the sum empty.
	if fields.Impuestos.IsZero() && len(fields.ImpuestosDetalle) > 0 {
		sum := fields.TaxBreakdownSum()
		if !sum.IsZero() {
			fields.Impuestos = sum
			res.Derivations = append(res.Derivations, Derivation{
				Field:      "impuestos",
				Value:      sum.String(),
				Confidence: 0.95,
				Reasoning:  "sum of impuestosDetalle entries",
			})
		}
	}

	// Tax-inclusive documents never discriminate IVA; the net is implied by
	// the configured rate.
	if taxInclusiveTypes[docType] && fields.NetoGravado.IsZero() && !fields.Importe.IsZero() {
		divisor := decimal.NewFromFloat(1 + e.cfg.ImpliedIVARate)
		neto := fields.Importe.Div(divisor).Round(2)
		fields.NetoGravado = neto
		res.Derivations = append(res.Derivations, Derivation{
			Field:      "netoGravado",
			Value:      neto.String(),
			Confidence: 0.8,
			Reasoning:  fmt.Sprintf("importe / %s for tax-inclusive %s", divisor.String(), docType),
		})
	}

	// exento = importe - netoGravado - impuestos, only when the remainder is
	// meaningful and nonnegative.
	if fields.Exento.IsZero() && !fields.Importe.IsZero() && !fields.NetoGravado.IsZero() {
		remainder := fields.Importe.Sub(fields.NetoGravado).Sub(fields.Impuestos).Round(2)
		if remainder.IsPositive() {
			fields.Exento = remainder
			res.Derivations = append(res.Derivations, Derivation{
				Field:      "exento",
				Value:      remainder.String(),
				Confidence: 0.7,
				Reasoning:  "importe - netoGravado - impuestos",
			})
		}
	}

	if !fields.TaxBreakdownConsistent(e.cfg.TaxTolerance) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"tax breakdown sum %s deviates from header impuestos %s beyond tolerance",
			fields.TaxBreakdownSum().String(), fields.Impuestos.String(),
		))
	}

	return res
}

// MissingRequired lists the required fields absent after rule application.
// A document missing any of these cannot complete.
func MissingRequired(fields *domain.ExtractedFields) []string {
	var missing []string
	if fields.Fecha == "" {
		missing = append(missing, "fecha")
	}
	if fields.Importe.IsZero() {
		missing = append(missing, "importe")
	}
	if fields.CUIT == "" {
		missing = append(missing, "cuit")
	}
	return missing
}

// normalizeCUIT reformats a CUIT to XX-XXXXXXXX-X. Values that are not 11
// digits after stripping separators pass through unchanged; the extractor's
// answer is better than a mangled one.
func normalizeCUIT(cuit string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, cuit)
	if !cuitDigitsRE.MatchString(digits) {
		return cuit
	}
	return digits[:2] + "-" + digits[2:10] + "-" + digits[10:]
}

// normalizeFecha converts DD/MM/YYYY and DD-MM-YYYY to YYYY-MM-DD.
func normalizeFecha(fecha string) string {
	fecha = strings.TrimSpace(fecha)
	if len(fecha) == 10 && fecha[4] == '-' && fecha[7] == '-' {
		return fecha
	}
	if len(fecha) == 10 && (fecha[2] == '/' || fecha[2] == '-') && (fecha[5] == '/' || fecha[5] == '-') {
		return fecha[6:10] + "-" + fecha[3:5] + "-" + fecha[0:2]
	}
	return fecha
}
