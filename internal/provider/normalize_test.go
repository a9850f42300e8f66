package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturio/internal/domain"
	"facturio/internal/provider"
)

func TestExtractJSON_PlainObject(t *testing.T) {
	raw, err := provider.ExtractJSON(`{"tipo": "FACTURA_A", "confianza": 0.95}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tipo": "FACTURA_A", "confianza": 0.95}`, string(raw))
}

func TestExtractJSON_MarkdownFence(t *testing.T) {
	completion := "```json\n{\"tipo\": \"FACTURA_B\"}\n```"
	raw, err := provider.ExtractJSON(completion)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tipo": "FACTURA_B"}`, string(raw))
}

func TestExtractJSON_SurroundingProse(t *testing.T) {
	completion := `Aquí está el resultado del análisis:

{"fecha": "2025-03-15", "importe": 1210.00}

Espero que sea útil.`
	raw, err := provider.ExtractJSON(completion)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fecha": "2025-03-15", "importe": 1210.00}`, string(raw))
}

func TestExtractJSON_NestedObjectsAndStrings(t *testing.T) {
	completion := `{"razonSocial": "ACME {S.A.}", "detalle": {"tipo": "IVA 21%"}}`
	raw, err := provider.ExtractJSON(completion)
	require.NoError(t, err)
	assert.JSONEq(t, completion, string(raw))
}

func TestExtractJSON_EscapedQuoteInString(t *testing.T) {
	completion := `{"razonSocial": "Libreria \"El Ateneo\""}`
	raw, err := provider.ExtractJSON(completion)
	require.NoError(t, err)
	assert.JSONEq(t, completion, string(raw))
}

func TestExtractJSON_NoObject(t *testing.T) {
	_, err := provider.ExtractJSON("no puedo procesar este documento")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestExtractJSON_UnbalancedBraces(t *testing.T) {
	_, err := provider.ExtractJSON(`{"tipo": "FACTURA_A"`)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestExtractJSON_InvalidJSONInsideBraces(t *testing.T) {
	_, err := provider.ExtractJSON(`{tipo: FACTURA_A}`)
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestExtractJSON_Empty(t *testing.T) {
	_, err := provider.ExtractJSON("")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}
