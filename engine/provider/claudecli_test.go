package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnvelope(t *testing.T) {
	t.Run("Should parse the JSON result envelope", func(t *testing.T) {
		envelope := `{
			"result": "All done.",
			"session_id": "sess-123",
			"total_cost_usd": 0.0421,
			"usage": {
				"input_tokens": 100,
				"cache_creation_input_tokens": 20,
				"cache_read_input_tokens": 5,
				"output_tokens": 40
			}
		}`
		resp := parseEnvelope(envelope)

		assert.Equal(t, "All done.", resp.Output)
		assert.Equal(t, "sess-123", resp.SessionID)
		require.NotNil(t, resp.CostUSD)
		assert.InDelta(t, 0.0421, *resp.CostUSD, 1e-9)
		require.NotNil(t, resp.InputTokens)
		assert.Equal(t, 125, *resp.InputTokens)
		require.NotNil(t, resp.OutputTokens)
		assert.Equal(t, 40, *resp.OutputTokens)
	})

	t.Run("Should pass through non-JSON output as the raw reply", func(t *testing.T) {
		resp := parseEnvelope("plain text reply\n")
		assert.Equal(t, "plain text reply", resp.Output)
		assert.Nil(t, resp.CostUSD)
		assert.Nil(t, resp.InputTokens)
	})

	t.Run("Should leave usage fields nil when the envelope omits them", func(t *testing.T) {
		resp := parseEnvelope(`{"result": "ok"}`)
		assert.Equal(t, "ok", resp.Output)
		assert.Nil(t, resp.CostUSD)
		assert.Nil(t, resp.InputTokens)
		assert.Nil(t, resp.OutputTokens)
	})
}
