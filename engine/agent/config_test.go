package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reviewerYAML = `
name: code-reviewer
description: Reviews code for common problems
working_directory: ~/repos/project
prompt: |
  Review the recent changes and report problems.
allowed_tools: [Read, Grep]
max_turns: 15
max_budget_usd: 0.75
context_script: |
  git log --oneline -10
`

func TestFromYAML(t *testing.T) {
	t.Run("Should load an agent template", func(t *testing.T) {
		cfg, err := FromYAML([]byte(reviewerYAML))
		require.NoError(t, err)

		assert.Equal(t, "code-reviewer", cfg.Name)
		assert.Equal(t, "~/repos/project", cfg.WorkingDirectory)
		assert.Contains(t, cfg.Prompt, "Review the recent changes")
		assert.Equal(t, []string{"Read", "Grep"}, cfg.AllowedTools)
		assert.Equal(t, 15, cfg.MaxTurns)
		assert.InDelta(t, 0.75, cfg.MaxBudgetUSD, 1e-9)
		assert.Contains(t, cfg.ContextScript, "git log")
	})

	t.Run("Should reject a template without a prompt", func(t *testing.T) {
		_, err := FromYAML([]byte("name: empty\n"))
		assert.Error(t, err)
	})

	t.Run("Should round-trip through YAML", func(t *testing.T) {
		cfg, err := FromYAML([]byte(reviewerYAML))
		require.NoError(t, err)

		data, err := cfg.ToYAML()
		require.NoError(t, err)

		reloaded, err := FromYAML(data)
		require.NoError(t, err)
		assert.Equal(t, cfg, reloaded)
	})
}
