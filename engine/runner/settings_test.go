package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctl/agentctl/engine/agent"
	"github.com/agentctl/agentctl/engine/workflow"
)

func TestResolveSettings(t *testing.T) {
	t.Run("Should use built-in defaults when nothing is set", func(t *testing.T) {
		wf := singleJobWorkflow(&workflow.Job{Prompt: "x"})
		s, err := ResolveSettings(wf, "solo", nil)
		require.NoError(t, err)

		assert.Equal(t, workflow.DefaultWorkingDirectory, s.WorkingDirectory)
		assert.Equal(t, workflow.DefaultAllowedTools(), s.AllowedTools)
		assert.Equal(t, workflow.DefaultMaxTurns, s.MaxTurns)
		assert.InDelta(t, workflow.DefaultMaxBudgetUSD, s.MaxBudgetUSD, 1e-9)
		assert.Empty(t, s.ContextScript)
	})

	t.Run("Should apply workflow defaults over built-ins", func(t *testing.T) {
		budget := 0.25
		turns := 30
		wf := singleJobWorkflow(&workflow.Job{Prompt: "x"})
		wf.Defaults = &workflow.Defaults{
			WorkingDirectory: "/srv/project",
			MaxBudgetUSD:     &budget,
			MaxTurns:         &turns,
			AllowedTools:     []string{"Read", "Edit"},
		}
		s, err := ResolveSettings(wf, "solo", nil)
		require.NoError(t, err)

		assert.Equal(t, "/srv/project", s.WorkingDirectory)
		assert.InDelta(t, 0.25, s.MaxBudgetUSD, 1e-9)
		assert.Equal(t, 30, s.MaxTurns)
		assert.Equal(t, []string{"Read", "Edit"}, s.AllowedTools)
	})

	t.Run("Should layer the agent template over workflow defaults", func(t *testing.T) {
		budget := 0.25
		wf := singleJobWorkflow(&workflow.Job{Agent: "reviewer"})
		wf.Defaults = &workflow.Defaults{WorkingDirectory: "/srv/project", MaxBudgetUSD: &budget}
		tmpl := &agent.Config{
			Name:          "reviewer",
			Prompt:        "review",
			MaxTurns:      5,
			ContextScript: "git status",
		}
		s, err := ResolveSettings(wf, "solo", tmpl)
		require.NoError(t, err)

		// Template wins where set, defaults fill the rest.
		assert.Equal(t, 5, s.MaxTurns)
		assert.Equal(t, "git status", s.ContextScript)
		assert.Equal(t, "/srv/project", s.WorkingDirectory)
		assert.InDelta(t, 0.25, s.MaxBudgetUSD, 1e-9)
	})

	t.Run("Should let job overrides win over everything", func(t *testing.T) {
		jobBudget := 1.5
		jobTurns := 3
		wf := singleJobWorkflow(&workflow.Job{
			Agent:            "reviewer",
			WorkingDirectory: "/tmp/job",
			MaxBudgetUSD:     &jobBudget,
			MaxTurns:         &jobTurns,
			AllowedTools:     []string{"Read"},
			ContextScript:    "ls",
		})
		defBudget := 0.25
		wf.Defaults = &workflow.Defaults{WorkingDirectory: "/srv/project", MaxBudgetUSD: &defBudget}
		tmpl := &agent.Config{
			Name: "reviewer", Prompt: "review",
			WorkingDirectory: "/srv/agent", MaxTurns: 5, MaxBudgetUSD: 0.5, ContextScript: "git status",
		}
		s, err := ResolveSettings(wf, "solo", tmpl)
		require.NoError(t, err)

		assert.Equal(t, "/tmp/job", s.WorkingDirectory)
		assert.InDelta(t, 1.5, s.MaxBudgetUSD, 1e-9)
		assert.Equal(t, 3, s.MaxTurns)
		assert.Equal(t, []string{"Read"}, s.AllowedTools)
		assert.Equal(t, "ls", s.ContextScript)
	})

	t.Run("Should honor an explicitly empty tool list on the job", func(t *testing.T) {
		wf := singleJobWorkflow(&workflow.Job{Prompt: "x", AllowedTools: []string{}})
		s, err := ResolveSettings(wf, "solo", nil)
		require.NoError(t, err)

		// An empty list means no tools, not "unset".
		assert.Empty(t, s.AllowedTools)
		assert.Equal(t, wf.AllowedTools("solo"), s.AllowedTools)
	})

	t.Run("Should honor an explicitly empty tool list on the template", func(t *testing.T) {
		wf := singleJobWorkflow(&workflow.Job{Agent: "reviewer"})
		wf.Defaults = &workflow.Defaults{AllowedTools: []string{"Read", "Edit"}}
		tmpl := &agent.Config{Name: "reviewer", Prompt: "review", AllowedTools: []string{}}
		s, err := ResolveSettings(wf, "solo", tmpl)
		require.NoError(t, err)
		assert.Empty(t, s.AllowedTools)
	})

	t.Run("Should error for an unknown job", func(t *testing.T) {
		wf := singleJobWorkflow(&workflow.Job{Prompt: "x"})
		_, err := ResolveSettings(wf, "ghost", nil)
		assert.Error(t, err)
	})
}
