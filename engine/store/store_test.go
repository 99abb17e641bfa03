package store

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentctl/agentctl/engine/agent"
	"github.com/agentctl/agentctl/engine/core"
	"github.com/agentctl/agentctl/engine/run"
	"github.com/agentctl/agentctl/engine/workflow"
)

func memStore() *Store {
	return NewWithFs(afero.NewMemMapFs(), "/state")
}

func sampleWorkflow(name string) *workflow.Config {
	return &workflow.Config{
		Name: name,
		Jobs: map[string]*workflow.Job{"a": {Prompt: "do a"}},
	}
}

func sampleAgent(name string) *agent.Config {
	return &agent.Config{Name: name, Prompt: "help out"}
}

func finishedRun(workflowName string, start time.Time) *run.WorkflowRun {
	r := run.NewWorkflowRun(workflowName, []string{"a"}, false)
	r.StartTime = start
	r.JobResult("a").MarkStarted()
	r.JobResult("a").MarkCompleted(map[string]string{"out": "v"}, "done")
	r.MarkCompleted()
	return r
}

func TestStore_Workflows(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round-trip a workflow", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("nightly")))

		cfg, err := s.Workflow(ctx, "nightly")
		require.NoError(t, err)
		assert.Equal(t, "nightly", cfg.Name)
		assert.Contains(t, cfg.Jobs, "a")
	})

	t.Run("Should refuse to create a duplicate", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.CreateWorkflow(ctx, sampleWorkflow("nightly")))

		err := s.CreateWorkflow(ctx, sampleWorkflow("nightly"))
		var exists *AlreadyExistsError
		require.ErrorAs(t, err, &exists)
		assert.Equal(t, "nightly", exists.Name)
	})

	t.Run("Should report a missing workflow as not found", func(t *testing.T) {
		s := memStore()
		_, err := s.Workflow(ctx, "ghost")
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "workflow", notFound.Kind)
	})

	t.Run("Should list workflows sorted by name", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("zeta")))
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("alpha")))

		configs, err := s.ListWorkflows(ctx)
		require.NoError(t, err)
		require.Len(t, configs, 2)
		assert.Equal(t, "alpha", configs[0].Name)
		assert.Equal(t, "zeta", configs[1].Name)
	})

	t.Run("Should reject an invalid workflow on save", func(t *testing.T) {
		s := memStore()
		bad := &workflow.Config{Name: "bad"}
		assert.Error(t, s.SaveWorkflow(ctx, bad))
	})

	t.Run("Should delete a workflow", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("gone")))
		require.NoError(t, s.DeleteWorkflow(ctx, "gone"))

		_, err := s.Workflow(ctx, "gone")
		assert.Error(t, err)
		assert.Error(t, s.DeleteWorkflow(ctx, "gone"))
	})
}

func TestStore_Agents(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round-trip an agent template", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.SaveAgent(ctx, sampleAgent("reviewer")))

		cfg, err := s.Agent(ctx, "reviewer")
		require.NoError(t, err)
		assert.Equal(t, "reviewer", cfg.Name)
		assert.Equal(t, "help out", cfg.Prompt)
	})

	t.Run("Should refuse to create a duplicate", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.CreateAgent(ctx, sampleAgent("reviewer")))

		err := s.CreateAgent(ctx, sampleAgent("reviewer"))
		var exists *AlreadyExistsError
		assert.ErrorAs(t, err, &exists)
	})

	t.Run("Should list agents sorted by name", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.SaveAgent(ctx, sampleAgent("writer")))
		require.NoError(t, s.SaveAgent(ctx, sampleAgent("reviewer")))

		agents, err := s.ListAgents(ctx)
		require.NoError(t, err)
		require.Len(t, agents, 2)
		assert.Equal(t, "reviewer", agents[0].Name)
		assert.Equal(t, "writer", agents[1].Name)
	})
}

func TestStore_Runs(t *testing.T) {
	ctx := context.Background()

	t.Run("Should round-trip a run record", func(t *testing.T) {
		s := memStore()
		r := finishedRun("nightly", time.Now())
		require.NoError(t, s.SaveRun(ctx, r))

		loaded, err := s.LoadRun(ctx, "nightly", r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, loaded.ID)
		assert.Equal(t, core.RunCompleted, loaded.Status)
		assert.Equal(t, "v", loaded.Outputs("a")["out"])
	})

	t.Run("Should resolve a unique run ID prefix", func(t *testing.T) {
		s := memStore()
		r := finishedRun("nightly", time.Now())
		require.NoError(t, s.SaveRun(ctx, r))

		loaded, err := s.LoadRun(ctx, "nightly", r.ID[:8])
		require.NoError(t, err)
		assert.Equal(t, r.ID, loaded.ID)
	})

	t.Run("Should report a missing run as not found", func(t *testing.T) {
		s := memStore()
		_, err := s.LoadRun(ctx, "nightly", "deadbeef")
		var notFound *NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("Should list runs newest first", func(t *testing.T) {
		s := memStore()
		base := time.Now()
		older := finishedRun("nightly", base.Add(-time.Hour))
		newer := finishedRun("nightly", base)
		require.NoError(t, s.SaveRun(ctx, older))
		require.NoError(t, s.SaveRun(ctx, newer))

		runs, err := s.ListRuns(ctx, "nightly")
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, newer.ID, runs[0].ID)
		assert.Equal(t, older.ID, runs[1].ID)

		latest, err := s.LatestRun(ctx, "nightly")
		require.NoError(t, err)
		assert.Equal(t, newer.ID, latest.ID)
	})

	t.Run("Should return no runs for an unknown workflow", func(t *testing.T) {
		s := memStore()
		runs, err := s.ListRuns(ctx, "ghost")
		require.NoError(t, err)
		assert.Empty(t, runs)
	})

	t.Run("Should prune old runs beyond the keep count", func(t *testing.T) {
		s := memStore()
		base := time.Now()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.SaveRun(ctx, finishedRun("nightly", base.Add(-time.Duration(i)*time.Hour))))
		}

		pruned, err := s.PruneRuns(ctx, "nightly", 2)
		require.NoError(t, err)
		assert.Equal(t, 3, pruned)

		runs, err := s.ListRuns(ctx, "nightly")
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})

	t.Run("Should create job output directories under the run", func(t *testing.T) {
		s := memStore()
		dir, err := s.JobOutputDir("nightly", "run123", "analyze")
		require.NoError(t, err)
		assert.Equal(t, "/state/runs/nightly/run123/analyze", dir)

		ok, err := afero.DirExists(s.fs, dir)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()

	t.Run("Should start from zeroed stats", func(t *testing.T) {
		s := memStore()
		stats, err := s.Stats(ctx, "nightly")
		require.NoError(t, err)
		assert.Equal(t, 0, stats.TotalRuns)
	})

	t.Run("Should accumulate stats across runs", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.RecordRunStats(ctx, finishedRun("nightly", time.Now())))

		failed := finishedRun("nightly", time.Now())
		failed.Status = core.RunFailed
		require.NoError(t, s.RecordRunStats(ctx, failed))

		stats, err := s.Stats(ctx, "nightly")
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalRuns)
		assert.Equal(t, 1, stats.SuccessfulRuns)
		assert.Equal(t, 1, stats.FailedRuns)
		assert.InDelta(t, 0.5, stats.SuccessRate(), 1e-9)
	})

	t.Run("Should keep stats per workflow", func(t *testing.T) {
		s := memStore()
		require.NoError(t, s.RecordRunStats(ctx, finishedRun("one", time.Now())))
		require.NoError(t, s.RecordRunStats(ctx, finishedRun("two", time.Now())))

		one, err := s.Stats(ctx, "one")
		require.NoError(t, err)
		assert.Equal(t, 1, one.TotalRuns)
	})
}
