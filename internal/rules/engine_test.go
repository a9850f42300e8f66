package rules_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturio/internal/config"
	"facturio/internal/domain"
	"facturio/internal/rules"
)

func newEngine() *rules.Engine {
	return rules.NewEngine(config.RulesConfig{
		ImpliedIVARate: 0.21,
		TaxTolerance:   0.01,
	})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApply_NormalizesFechaAndCUIT(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{
		Fecha:   "15/03/2025",
		CUIT:    "30712345678",
		Importe: dec("1000"),
	})

	assert.Equal(t, "2025-03-15", res.Fields.Fecha)
	assert.Equal(t, "30-71234567-8", res.Fields.CUIT)
}

func TestApply_MonedaDefaultsToARS(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{Importe: dec("100")})
	assert.Equal(t, "ARS", res.Fields.Moneda)

	res = newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{Importe: dec("100"), Moneda: "USD"})
	assert.Equal(t, "USD", res.Fields.Moneda)
}

func TestApply_InvalidCUITPassesThrough(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{CUIT: "30-123"})
	assert.Equal(t, "30-123", res.Fields.CUIT)
}

func TestApply_ImpuestosFromBreakdown(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{
		Importe: dec("1210"),
		ImpuestosDetalle: []domain.TaxEntry{
			{Tipo: "IVA", Alicuota: dec("21"), Importe: dec("168")},
			{Tipo: "Percepción IIBB", Alicuota: dec("3"), Importe: dec("42")},
		},
	})

	assert.True(t, res.Fields.Impuestos.Equal(dec("210")), "got %s", res.Fields.Impuestos)
	require.Len(t, res.Derivations, 1)
	assert.Equal(t, "impuestos", res.Derivations[0].Field)
	assert.Equal(t, 0.95, res.Derivations[0].Confidence)
}

func TestApply_NetoGravadoDerivedForTaxInclusiveTypes(t *testing.T) {
	for _, docType := range []domain.DocumentType{
		domain.DocTypeFacturaB, domain.DocTypeFacturaC, domain.DocTypeTicket,
	} {
		res := newEngine().Apply(docType, &domain.ExtractedFields{Importe: dec("1210")})

		assert.True(t, res.Fields.NetoGravado.Equal(dec("1000")),
			"%s: got %s", docType, res.Fields.NetoGravado)

		var found *rules.Derivation
		for i := range res.Derivations {
			if res.Derivations[i].Field == "netoGravado" {
				found = &res.Derivations[i]
			}
		}
		require.NotNil(t, found, "%s: missing netoGravado derivation", docType)
		assert.Equal(t, 0.8, found.Confidence)
	}
}

func TestApply_NetoGravadoNotDerivedForFacturaA(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{Importe: dec("1210")})
	assert.True(t, res.Fields.NetoGravado.IsZero())
	assert.Empty(t, res.Derivations)
}

func TestApply_ExtractedNetoNotOverwritten(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaB, &domain.ExtractedFields{
		Importe:     dec("1210"),
		NetoGravado: dec("990"),
	})
	assert.True(t, res.Fields.NetoGravado.Equal(dec("990")))
}

func TestApply_ExentoRemainder(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{
		Importe:     dec("1300"),
		NetoGravado: dec("1000"),
		Impuestos:   dec("210"),
	})

	assert.True(t, res.Fields.Exento.Equal(dec("90")), "got %s", res.Fields.Exento)
	require.Len(t, res.Derivations, 1)
	assert.Equal(t, "exento", res.Derivations[0].Field)
	assert.Equal(t, 0.7, res.Derivations[0].Confidence)
}

func TestApply_NegativeRemainderNotDerived(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{
		Importe:     dec("1000"),
		NetoGravado: dec("1000"),
		Impuestos:   dec("210"),
	})
	assert.True(t, res.Fields.Exento.IsZero())
}

func TestApply_TaxBreakdownInconsistencyWarns(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{
		Importe:   dec("1210"),
		Impuestos: dec("210"),
		ImpuestosDetalle: []domain.TaxEntry{
			{Tipo: "IVA", Alicuota: dec("21"), Importe: dec("150")},
		},
	})

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "tax breakdown")
}

func TestApply_TaxBreakdownWithinToleranceNoWarning(t *testing.T) {
	res := newEngine().Apply(domain.DocTypeFacturaA, &domain.ExtractedFields{
		Importe:   dec("1210"),
		Impuestos: dec("210.00"),
		ImpuestosDetalle: []domain.TaxEntry{
			{Tipo: "IVA", Alicuota: dec("21"), Importe: dec("209.50")},
		},
	})
	assert.Empty(t, res.Warnings)
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := &domain.ExtractedFields{Fecha: "15/03/2025", Importe: dec("1210")}
	_ = newEngine().Apply(domain.DocTypeFacturaB, in)

	assert.Equal(t, "15/03/2025", in.Fecha)
	assert.True(t, in.NetoGravado.IsZero())
}

func TestMissingRequired(t *testing.T) {
	missing := rules.MissingRequired(&domain.ExtractedFields{})
	assert.ElementsMatch(t, []string{"fecha", "importe", "cuit"}, missing)

	missing = rules.MissingRequired(&domain.ExtractedFields{
		Fecha:   "2025-03-15",
		Importe: dec("100"),
		CUIT:    "30-71234567-8",
	})
	assert.Empty(t, missing)
}
