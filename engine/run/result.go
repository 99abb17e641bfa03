package run

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentctl/agentctl/engine/core"
)

// JobResult is the persisted outcome of one job inside a run. Status
// transitions are monotonic: once a terminal status is reached the markers
// become no-ops.
type JobResult struct {
	JobName      string            `json:"job_name"`
	Status       core.JobStatus    `json:"status"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	StartTime    *time.Time        `json:"start_time,omitempty"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	Cost         *float64          `json:"cost,omitempty"`
	InputTokens  *int              `json:"input_tokens,omitempty"`
	OutputTokens *int              `json:"output_tokens,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	AgentOutput  string            `json:"agent_output,omitempty"`
	OutputDir    string            `json:"output_dir,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
}

func NewJobResult(name string) *JobResult {
	return &JobResult{JobName: name, Status: core.JobPending}
}

func (r *JobResult) IsFinished() bool {
	return r.Status.IsTerminal()
}

func (r *JobResult) IsSuccessful() bool {
	return r.Status == core.JobCompleted
}

// Duration returns the elapsed execution time, when both timestamps exist.
func (r *JobResult) Duration() (time.Duration, bool) {
	if r.StartTime == nil || r.EndTime == nil {
		return 0, false
	}
	return r.EndTime.Sub(*r.StartTime), true
}

func (r *JobResult) TotalTokens() int {
	total := 0
	if r.InputTokens != nil {
		total += *r.InputTokens
	}
	if r.OutputTokens != nil {
		total += *r.OutputTokens
	}
	return total
}

func (r *JobResult) MarkStarted() {
	if r.Status.IsTerminal() {
		return
	}
	now := time.Now()
	r.Status = core.JobRunning
	r.StartTime = &now
}

func (r *JobResult) MarkCompleted(outputs map[string]string, agentOutput string) {
	if r.Status.IsTerminal() {
		return
	}
	now := time.Now()
	r.Status = core.JobCompleted
	r.EndTime = &now
	if len(outputs) > 0 {
		r.Outputs = outputs
	}
	if agentOutput != "" {
		r.AgentOutput = agentOutput
	}
}

func (r *JobResult) MarkFailed(errMsg string) {
	if r.Status.IsTerminal() {
		return
	}
	now := time.Now()
	r.Status = core.JobFailed
	r.EndTime = &now
	r.ErrorMessage = errMsg
}

func (r *JobResult) MarkSkipped(reason string) {
	if r.Status.IsTerminal() {
		return
	}
	now := time.Now()
	r.Status = core.JobSkipped
	r.EndTime = &now
	if reason != "" {
		r.ErrorMessage = "Skipped: " + reason
	}
}

func (r *JobResult) MarkCancelled() {
	if r.Status.IsTerminal() {
		return
	}
	now := time.Now()
	r.Status = core.JobCancelled
	r.EndTime = &now
}

// UpdateStats stores token counts and cost reported by the provider.
func (r *JobResult) UpdateStats(inputTokens, outputTokens *int, cost *float64) {
	r.InputTokens = inputTokens
	r.OutputTokens = outputTokens
	r.Cost = cost
}

// WorkflowRun is one execution attempt of a workflow: exactly one JobResult
// per declared job, created pending at run start. The job set is immutable
// for the run's lifetime.
type WorkflowRun struct {
	ID           string                `json:"id"`
	WorkflowName string                `json:"workflow_name"`
	Status       core.RunStatus        `json:"status"`
	JobResults   map[string]*JobResult `json:"job_results"`
	StartTime    time.Time             `json:"start_time"`
	EndTime      *time.Time            `json:"end_time,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	IsDryRun     bool                  `json:"is_dry_run"`
}

// NewWorkflowRun creates a pending run with one pending JobResult per job.
func NewWorkflowRun(workflowName string, jobNames []string, dryRun bool) *WorkflowRun {
	results := make(map[string]*JobResult, len(jobNames))
	for _, name := range jobNames {
		results[name] = NewJobResult(name)
	}
	return &WorkflowRun{
		ID:           strings.ReplaceAll(uuid.NewString(), "-", ""),
		WorkflowName: workflowName,
		Status:       core.RunPending,
		JobResults:   results,
		StartTime:    time.Now(),
		IsDryRun:     dryRun,
	}
}

func (w *WorkflowRun) MarkStarted() {
	w.Status = core.RunRunning
	w.StartTime = time.Now()
}

func (w *WorkflowRun) MarkCompleted() {
	now := time.Now()
	w.Status = core.RunCompleted
	w.EndTime = &now
}

func (w *WorkflowRun) MarkFailed(errMsg string) {
	now := time.Now()
	w.Status = core.RunFailed
	w.EndTime = &now
	w.ErrorMessage = errMsg
}

func (w *WorkflowRun) MarkCancelled() {
	now := time.Now()
	w.Status = core.RunCancelled
	w.EndTime = &now
}

func (w *WorkflowRun) JobResult(name string) *JobResult {
	return w.JobResults[name]
}

// UpdateJobResult merges a worker's result back into the run. The scheduler
// is the sole caller.
func (w *WorkflowRun) UpdateJobResult(result *JobResult) {
	w.JobResults[result.JobName] = result
}

// Outputs returns the extracted outputs of a job, or nil.
func (w *WorkflowRun) Outputs(jobName string) map[string]string {
	if r, ok := w.JobResults[jobName]; ok {
		return r.Outputs
	}
	return nil
}

func (w *WorkflowRun) TotalCost() float64 {
	total := 0.0
	for _, r := range w.JobResults {
		if r.Cost != nil {
			total += *r.Cost
		}
	}
	return total
}

func (w *WorkflowRun) TotalInputTokens() int {
	total := 0
	for _, r := range w.JobResults {
		if r.InputTokens != nil {
			total += *r.InputTokens
		}
	}
	return total
}

func (w *WorkflowRun) TotalOutputTokens() int {
	total := 0
	for _, r := range w.JobResults {
		if r.OutputTokens != nil {
			total += *r.OutputTokens
		}
	}
	return total
}

func (w *WorkflowRun) TotalTokens() int {
	return w.TotalInputTokens() + w.TotalOutputTokens()
}

func (w *WorkflowRun) CountByStatus(status core.JobStatus) int {
	count := 0
	for _, r := range w.JobResults {
		if r.Status == status {
			count++
		}
	}
	return count
}

func (w *WorkflowRun) CompletedJobCount() int { return w.CountByStatus(core.JobCompleted) }
func (w *WorkflowRun) FailedJobCount() int    { return w.CountByStatus(core.JobFailed) }
func (w *WorkflowRun) SkippedJobCount() int   { return w.CountByStatus(core.JobSkipped) }

func (w *WorkflowRun) AllJobsFinished() bool {
	for _, r := range w.JobResults {
		if !r.IsFinished() {
			return false
		}
	}
	return true
}

// Duration returns the elapsed run time once the run has ended.
func (w *WorkflowRun) Duration() (time.Duration, bool) {
	if w.EndTime == nil {
		return 0, false
	}
	return w.EndTime.Sub(w.StartTime), true
}

var statusIcons = map[core.JobStatus]string{
	core.JobPending:   "○",
	core.JobRunning:   "◐",
	core.JobCompleted: "●",
	core.JobFailed:    "✗",
	core.JobSkipped:   "⊘",
	core.JobCancelled: "◌",
}

// Summary renders a human-readable report of the run.
func (w *WorkflowRun) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow: %s\n", w.WorkflowName)
	fmt.Fprintf(&b, "Status: %s\n", w.Status)
	fmt.Fprintf(&b, "Run ID: %s\n", w.ID)
	if d, ok := w.Duration(); ok {
		fmt.Fprintf(&b, "Duration: %.1fs\n", d.Seconds())
	}
	b.WriteString("\nJobs:\n")
	for _, name := range sortedJobNames(w.JobResults) {
		r := w.JobResults[name]
		icon, ok := statusIcons[r.Status]
		if !ok {
			icon = "?"
		}
		fmt.Fprintf(&b, "  %s %s: %s", icon, name, r.Status)
		if d, ok := r.Duration(); ok {
			fmt.Fprintf(&b, " (%.1fs)", d.Seconds())
		}
		if r.Cost != nil {
			fmt.Fprintf(&b, " $%.4f", *r.Cost)
		}
		b.WriteString("\n")
		if r.Status == core.JobFailed && r.ErrorMessage != "" {
			fmt.Fprintf(&b, "      Error: %s\n", r.ErrorMessage)
		}
	}
	fmt.Fprintf(&b, "\nTotal Cost: $%.4f\n", w.TotalCost())
	fmt.Fprintf(&b, "Total Tokens: %d (%d input, %d output)\n",
		w.TotalTokens(), w.TotalInputTokens(), w.TotalOutputTokens())
	return b.String()
}

func sortedJobNames(results map[string]*JobResult) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
