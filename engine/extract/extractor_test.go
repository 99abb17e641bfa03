package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor_Extract(t *testing.T) {
	e := New()

	t.Run("Should extract from structured output tags", func(t *testing.T) {
		response := `Work done.
<output name="summary">all tests passing</output>`
		outputs := e.Extract(response, []string{"summary"})
		assert.Equal(t, map[string]string{"summary": "all tests passing"}, outputs)
	})

	t.Run("Should extract from simple tags", func(t *testing.T) {
		outputs := e.Extract("<summary>ok</summary>", []string{"summary"})
		assert.Equal(t, map[string]string{"summary": "ok"}, outputs)
	})

	t.Run("Should extract multiline tag bodies", func(t *testing.T) {
		response := "<findings>first\nsecond</findings>"
		outputs := e.Extract(response, []string{"findings"})
		assert.Equal(t, "first\nsecond", outputs["findings"])
	})

	t.Run("Should match tags case-insensitively", func(t *testing.T) {
		outputs := e.Extract("<Summary>ok</Summary>", []string{"summary"})
		assert.Equal(t, "ok", outputs["summary"])
	})

	t.Run("Should extract from key-value lines", func(t *testing.T) {
		cases := map[string]string{
			"**verdict**: approve":        "approve",
			"verdict: approve\nmore text": "approve",
			"- verdict: approve":          "approve",
		}
		for response, expected := range cases {
			outputs := e.Extract(response, []string{"verdict"})
			assert.Equal(t, expected, outputs["verdict"], response)
		}
	})

	t.Run("Should extract from inline mentions", func(t *testing.T) {
		cases := map[string]string{
			"After review, the verdict is approve.": "approve",
			"verdict = approve":                     "approve",
			"the verdict: `approve`":                "approve",
		}
		for response, expected := range cases {
			outputs := e.Extract(response, []string{"verdict"})
			assert.Equal(t, expected, outputs["verdict"], response)
		}
	})

	t.Run("Should prefer the structured tag over weaker strategies", func(t *testing.T) {
		response := `verdict: wrong
<output name="verdict">right</output>`
		outputs := e.Extract(response, []string{"verdict"})
		assert.Equal(t, "right", outputs["verdict"])
	})

	t.Run("Should omit names with no match instead of erroring", func(t *testing.T) {
		outputs := e.Extract("nothing to see here", []string{"summary", "verdict"})
		assert.Empty(t, outputs)
	})

	t.Run("Should return empty map when no outputs are declared", func(t *testing.T) {
		outputs := e.Extract("<summary>ok</summary>", nil)
		assert.Empty(t, outputs)
	})

	t.Run("Should reject overly long inline values", func(t *testing.T) {
		response := "verdict = " + strings.Repeat("x", 600)
		outputs := e.Extract(response, []string{"verdict"})
		assert.Empty(t, outputs)
	})

	t.Run("Should extract several declared names independently", func(t *testing.T) {
		response := `<summary>done</summary>
**count**: 3`
		outputs := e.Extract(response, []string{"summary", "count", "missing"})
		assert.Equal(t, map[string]string{"summary": "done", "count": "3"}, outputs)
	})
}

func TestExtractor_ExtractJSON(t *testing.T) {
	e := New()

	t.Run("Should extract from a fenced json block with outputs key", func(t *testing.T) {
		response := "Here you go:\n```json\n{\"outputs\": {\"summary\": \"ok\", \"count\": 3}}\n```"
		outputs := e.ExtractJSON(response)
		require.NotNil(t, outputs)
		assert.Equal(t, "ok", outputs["summary"])
		assert.Equal(t, "3", outputs["count"])
	})

	t.Run("Should treat a fenced block without outputs key as the outputs object", func(t *testing.T) {
		response := "```json\n{\"summary\": \"ok\"}\n```"
		outputs := e.ExtractJSON(response)
		require.NotNil(t, outputs)
		assert.Equal(t, "ok", outputs["summary"])
	})

	t.Run("Should find an inline object containing an outputs key", func(t *testing.T) {
		response := `prefix {"outputs": "flat"} suffix`
		// The inline object exists but "outputs" is not an object itself,
		// and the whole document is not usable either.
		outputs := e.ExtractJSON(response)
		assert.Nil(t, outputs)
	})

	t.Run("Should stringify null values as empty strings", func(t *testing.T) {
		response := "```json\n{\"outputs\": {\"summary\": null}}\n```"
		outputs := e.ExtractJSON(response)
		require.NotNil(t, outputs)
		assert.Equal(t, "", outputs["summary"])
	})

	t.Run("Should return nil when no JSON block exists", func(t *testing.T) {
		assert.Nil(t, e.ExtractJSON("no json here"))
	})

	t.Run("Should skip invalid JSON", func(t *testing.T) {
		assert.Nil(t, e.ExtractJSON("```json\n{not json}\n```"))
	})
}

func TestInstructions(t *testing.T) {
	t.Run("Should render tag templates for each declared output", func(t *testing.T) {
		text := Instructions([]string{"summary", "verdict"})
		assert.Contains(t, text, "<summary>your value here</summary>")
		assert.Contains(t, text, "<verdict>your value here</verdict>")
		assert.Contains(t, text, "- summary")
		assert.Contains(t, text, "- verdict")
	})

	t.Run("Should be empty when no outputs are declared", func(t *testing.T) {
		assert.Empty(t, Instructions(nil))
	})

	t.Run("Should round-trip through the extractor", func(t *testing.T) {
		e := New()
		// An agent following the instructions emits simple tags, which the
		// second strategy picks up.
		response := "Work finished.\n<summary>looks good</summary>\n"
		outputs := e.Extract(response, []string{"summary"})
		assert.Equal(t, "looks good", outputs["summary"])
	})
}
