package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentctl/agentctl/engine/schedule"
)

// ValidationError reports a structural problem in a workflow definition.
// Validation failures are fatal: no run is started for an invalid workflow.
type ValidationError struct {
	Workflow string
	Detail   string
}

func (e *ValidationError) Error() string {
	if e.Workflow != "" {
		return fmt.Sprintf("invalid workflow %q: %s", e.Workflow, e.Detail)
	}
	return fmt.Sprintf("invalid workflow: %s", e.Detail)
}

func (c *Config) validationError(format string, args ...any) error {
	return &ValidationError{Workflow: c.Name, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks the workflow definition: struct-level constraints, the
// agent-xor-prompt rule, dependency references, schedule expressions, and
// cycle freedom.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return &ValidationError{Workflow: c.Name, Detail: err.Error()}
	}

	for _, name := range c.JobNames() {
		job := c.Jobs[name]
		hasAgent := job.Agent != ""
		hasPrompt := job.Prompt != ""
		switch {
		case hasAgent && hasPrompt:
			return c.validationError("job %q must have either 'agent' or 'prompt', not both", name)
		case !hasAgent && !hasPrompt:
			return c.validationError("job %q must have 'agent' or 'prompt' defined", name)
		}
		for _, dep := range job.Needs {
			if _, ok := c.Jobs[dep]; !ok {
				return c.validationError("job %q depends on unknown job %q", name, dep)
			}
		}
		if job.ContinueSession != "" {
			if _, ok := c.Jobs[job.ContinueSession]; !ok {
				return c.validationError("job %q continues the session of unknown job %q", name, job.ContinueSession)
			}
		}
	}

	for _, spec := range c.On.Schedule {
		if err := schedule.Validate(spec.Cron); err != nil {
			return c.validationError("schedule trigger: %s", err)
		}
	}

	return c.detectCycles()
}

// detectCycles runs a depth-first search with a recursion stack and reports
// the offending path when a circular dependency exists.
func (c *Config) detectCycles() error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		if onStack[name] {
			cycle := append(path, name)
			return c.validationError("circular dependency detected: %s", strings.Join(cycle, " -> "))
		}
		if visited[name] {
			return nil
		}
		visited[name] = true
		onStack[name] = true
		if job, ok := c.Jobs[name]; ok {
			for _, dep := range job.Needs {
				if err := visit(dep, append(path, name)); err != nil {
					return err
				}
			}
		}
		onStack[name] = false
		return nil
	}

	for _, name := range c.JobNames() {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}

// JobNames returns the job names sorted alphabetically.
func (c *Config) JobNames() []string {
	names := make([]string, 0, len(c.Jobs))
	for name := range c.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
