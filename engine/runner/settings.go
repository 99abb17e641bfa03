package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"

	"github.com/agentctl/agentctl/engine/agent"
	"github.com/agentctl/agentctl/engine/workflow"
)

// Settings are the fully resolved execution parameters for one job. Layers
// are merged lowest-precedence first: built-in defaults, workflow defaults,
// the agent template (when the job references one), then the job's own
// overrides.
type Settings struct {
	WorkingDirectory string
	AllowedTools     []string
	MaxTurns         int
	MaxBudgetUSD     float64
	ContextScript    string
}

// ResolveSettings merges the setting layers for a job. AllowedTools is
// resolved set-if-non-nil outside the merge: an explicitly empty tool list is
// an override (no tools), not an unset value, and mergo cannot tell the two
// apart.
func ResolveSettings(wf *workflow.Config, jobName string, tmpl *agent.Config) (*Settings, error) {
	job, ok := wf.Jobs[jobName]
	if !ok {
		return nil, fmt.Errorf("job %q is not defined in workflow %q", jobName, wf.Name)
	}

	resolved := &Settings{
		WorkingDirectory: workflow.DefaultWorkingDirectory,
		AllowedTools:     workflow.DefaultAllowedTools(),
		MaxTurns:         workflow.DefaultMaxTurns,
		MaxBudgetUSD:     workflow.DefaultMaxBudgetUSD,
	}

	layers := make([]*Settings, 0, 3)
	if wf.Defaults != nil {
		layers = append(layers, fromDefaults(wf.Defaults))
		if wf.Defaults.AllowedTools != nil {
			resolved.AllowedTools = wf.Defaults.AllowedTools
		}
	}
	if tmpl != nil {
		layers = append(layers, fromTemplate(tmpl))
		if tmpl.AllowedTools != nil {
			resolved.AllowedTools = tmpl.AllowedTools
		}
	}
	layers = append(layers, fromJob(job))
	if job.AllowedTools != nil {
		resolved.AllowedTools = job.AllowedTools
	}

	for _, layer := range layers {
		if err := mergo.Merge(resolved, layer, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to resolve settings for job %q: %w", jobName, err)
		}
	}
	return resolved, nil
}

func fromDefaults(d *workflow.Defaults) *Settings {
	s := &Settings{
		WorkingDirectory: d.WorkingDirectory,
	}
	if d.MaxTurns != nil {
		s.MaxTurns = *d.MaxTurns
	}
	if d.MaxBudgetUSD != nil {
		s.MaxBudgetUSD = *d.MaxBudgetUSD
	}
	return s
}

func fromTemplate(t *agent.Config) *Settings {
	return &Settings{
		WorkingDirectory: t.WorkingDirectory,
		MaxTurns:         t.MaxTurns,
		MaxBudgetUSD:     t.MaxBudgetUSD,
		ContextScript:    t.ContextScript,
	}
}

func fromJob(j *workflow.Job) *Settings {
	s := &Settings{
		WorkingDirectory: j.WorkingDirectory,
		ContextScript:    j.ContextScript,
	}
	if j.MaxTurns != nil {
		s.MaxTurns = *j.MaxTurns
	}
	if j.MaxBudgetUSD != nil {
		s.MaxBudgetUSD = *j.MaxBudgetUSD
	}
	return s
}

// expandHome resolves a leading ~ against the current user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
