package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facturio/internal/config"
	"facturio/internal/provider"
	"facturio/internal/provider/anthropic"
)

func testConfig() *config.ProviderBackendConfig {
	return &config.ProviderBackendConfig{
		Kind:   "anthropic",
		APIKey: "test-key",
		Model:  "claude-sonnet-4-20250514",
	}
}

func TestComplete_Success(t *testing.T) {
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": `{"tipo": "FACTURA_A"}`}},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	client := anthropic.NewClientWithEndpoint(testConfig(), server.URL)
	completion, err := client.Complete(context.Background(), "classify this")

	require.NoError(t, err)
	assert.Equal(t, `{"tipo": "FACTURA_A"}`, completion)
	assert.Equal(t, "claude-sonnet-4-20250514", gotBody["model"])

	messages := gotBody["messages"].([]interface{})
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]interface{})
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "classify this", msg["content"])
}

func TestComplete_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	client := anthropic.NewClientWithEndpoint(testConfig(), server.URL)
	_, err := client.Complete(context.Background(), "prompt")

	require.Error(t, err)
	var pe *provider.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, provider.KindQuotaExceeded, pe.Kind)
	assert.Equal(t, "anthropic", pe.Provider)
	assert.Equal(t, float64(30), pe.RetryAfter.Seconds())
}

func TestComplete_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := anthropic.NewClientWithEndpoint(testConfig(), server.URL)
	_, err := client.Complete(context.Background(), "prompt")

	require.Error(t, err)
	assert.Equal(t, provider.KindUnavailable, provider.KindOf(err))
}

func TestComplete_TruncatedOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{{"type": "text", "text": "{\"partial"}},
			"stop_reason": "max_tokens",
		})
	}))
	defer server.Close()

	client := anthropic.NewClientWithEndpoint(testConfig(), server.URL)
	_, err := client.Complete(context.Background(), "prompt")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens")
}

func TestComplete_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"content":     []map[string]string{},
			"stop_reason": "end_turn",
		})
	}))
	defer server.Close()

	client := anthropic.NewClientWithEndpoint(testConfig(), server.URL)
	_, err := client.Complete(context.Background(), "prompt")
	assert.Error(t, err)
}
