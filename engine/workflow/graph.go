package workflow

import "sort"

// TopologicalSort returns the jobs in dependency order: every job appears
// after all of its needs. The order is deterministic (DFS postorder over
// alphabetically sorted names) and is meant for display and dry-run
// planning; execution uses dynamic readiness instead.
func (c *Config) TopologicalSort() ([]string, error) {
	result := make([]string, 0, len(c.Jobs))
	visited := make(map[string]bool)
	onStack := make(map[string]bool)

	var visit func(name string) error
	visit = func(name string) error {
		if onStack[name] {
			return c.validationError("circular dependency at %q", name)
		}
		if visited[name] {
			return nil
		}
		onStack[name] = true
		if job, ok := c.Jobs[name]; ok {
			for _, dep := range job.Needs {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		onStack[name] = false
		visited[name] = true
		result = append(result, name)
		return nil
	}

	for _, name := range c.JobNames() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// RootJobs returns the jobs with no dependencies, sorted.
func (c *Config) RootJobs() []string {
	var roots []string
	for name, job := range c.Jobs {
		if !job.HasDependencies() {
			roots = append(roots, name)
		}
	}
	sort.Strings(roots)
	return roots
}

// Dependents returns the jobs whose needs include the given job, sorted.
func (c *Config) Dependents(jobName string) []string {
	var dependents []string
	for name, job := range c.Jobs {
		for _, dep := range job.Needs {
			if dep == jobName {
				dependents = append(dependents, name)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}
