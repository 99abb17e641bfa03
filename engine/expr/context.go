package expr

import (
	"strings"

	"github.com/agentctl/agentctl/engine/core"
)

// Context holds the values expressions evaluate against: outputs and
// statuses of jobs that have already finished, workflow-level variables, and
// the scratch values of the job currently being prepared.
//
// The DAG executor owns the canonical context and hands workers an
// independent Clone, so workers never mutate shared state.
type Context struct {
	jobOutputs  map[string]map[string]string
	jobStatuses map[string]core.JobStatus
	variables   map[string]string
	currentJob  map[string]string
}

func NewContext() *Context {
	return &Context{
		jobOutputs:  make(map[string]map[string]string),
		jobStatuses: make(map[string]core.JobStatus),
		variables:   make(map[string]string),
		currentJob:  make(map[string]string),
	}
}

// SetOutputs records the extracted outputs of a finished job.
func (c *Context) SetOutputs(job string, outputs map[string]string) {
	c.jobOutputs[job] = outputs
}

// SetStatus records the terminal status of a finished job.
func (c *Context) SetStatus(job string, status core.JobStatus) {
	c.jobStatuses[job] = status
}

// SetVariable sets a workflow-level variable resolvable by bare name.
func (c *Context) SetVariable(name, value string) {
	c.variables[name] = value
}

// SetCurrentJob sets the scratch directory exposed as ${{ job.output_dir }}.
func (c *Context) SetCurrentJob(outputDir string) {
	c.currentJob = map[string]string{"output_dir": outputDir}
}

// ClearCurrentJob removes the current-job scope.
func (c *Context) ClearCurrentJob() {
	c.currentJob = make(map[string]string)
}

// Status returns the recorded status for a job, if any.
func (c *Context) Status(job string) (core.JobStatus, bool) {
	s, ok := c.jobStatuses[job]
	return s, ok
}

// Statuses returns every recorded job status.
func (c *Context) Statuses() map[string]core.JobStatus {
	return c.jobStatuses
}

// Clone returns an independent deep copy of the context.
func (c *Context) Clone() *Context {
	clone := NewContext()
	for job, outputs := range c.jobOutputs {
		copied := make(map[string]string, len(outputs))
		for k, v := range outputs {
			copied[k] = v
		}
		clone.jobOutputs[job] = copied
	}
	for job, status := range c.jobStatuses {
		clone.jobStatuses[job] = status
	}
	for k, v := range c.variables {
		clone.variables[k] = v
	}
	for k, v := range c.currentJob {
		clone.currentJob[k] = v
	}
	return clone
}

// Resolve looks up a variable path. Supported forms:
//
//	jobs.<name>.outputs.<key>
//	jobs.<name>.status
//	job.<key>
//	<bare variable name>
//
// The second return is false when the path does not resolve; an unresolved
// reference is undefined, not an error.
func (c *Context) Resolve(path string) (string, bool) {
	parts := strings.Split(path, ".")

	if len(parts) == 2 && parts[0] == "job" {
		v, ok := c.currentJob[parts[1]]
		return v, ok
	}

	if len(parts) == 4 && parts[0] == "jobs" && parts[2] == "outputs" {
		outputs, ok := c.jobOutputs[parts[1]]
		if !ok {
			return "", false
		}
		v, ok := outputs[parts[3]]
		return v, ok
	}

	if len(parts) == 3 && parts[0] == "jobs" && parts[2] == "status" {
		status, ok := c.jobStatuses[parts[1]]
		if !ok {
			return "", false
		}
		return status.String(), true
	}

	v, ok := c.variables[path]
	return v, ok
}
