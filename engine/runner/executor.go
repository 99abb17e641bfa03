package runner

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/agentctl/agentctl/engine/agent"
	"github.com/agentctl/agentctl/engine/core"
	"github.com/agentctl/agentctl/engine/expr"
	"github.com/agentctl/agentctl/engine/guardrail"
	"github.com/agentctl/agentctl/engine/run"
	"github.com/agentctl/agentctl/engine/workflow"
	"github.com/agentctl/agentctl/pkg/logger"
)

// RunStore persists run state. SaveRun is called after every job completion
// so a crash loses at most the in-flight jobs.
type RunStore interface {
	SaveRun(ctx context.Context, r *run.WorkflowRun) error
	JobOutputDir(workflowName, runID, jobName string) (string, error)
}

// AgentSource resolves agent templates referenced by jobs.
type AgentSource interface {
	Agent(ctx context.Context, name string) (*agent.Config, error)
}

// Options tunes one executor instance.
type Options struct {
	// MaxConcurrent caps simultaneously running jobs; <= 0 falls back to
	// guardrail.DefaultMaxConcurrent.
	MaxConcurrent int
	// DryRun plans the run without invoking the provider or persisting.
	DryRun bool
	// Job restricts the run to a single named job, ignoring the rest of
	// the graph.
	Job string
	// OnJobUpdate is invoked from the scheduler goroutine whenever a job
	// reaches a new status.
	OnJobUpdate func(result *run.JobResult)
}

// DAGExecutor schedules a workflow's jobs in dependency order.
//
// It is a single-writer scheduler: one goroutine owns the run record, the
// guardrail ledger and the expression context, dispatches ready jobs to
// worker goroutines with a cloned context snapshot, and folds results back in
// as they arrive on the result channel. Workers share nothing, so none of the
// mutable state needs locks.
type DAGExecutor struct {
	workflow *workflow.Config
	runner   *JobRunner
	store    RunStore
	agents   AgentSource
	opts     Options

	mu        sync.Mutex
	cancelled bool
}

func NewDAGExecutor(wf *workflow.Config, r *JobRunner, store RunStore, agents AgentSource, opts Options) *DAGExecutor {
	return &DAGExecutor{
		workflow: wf,
		runner:   r,
		store:    store,
		agents:   agents,
		opts:     opts,
	}
}

// Cancel asks the scheduler to stop. No new jobs are dispatched; running
// jobs are interrupted through their context and pending jobs are marked
// cancelled. Safe to call from any goroutine.
func (e *DAGExecutor) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
}

func (e *DAGExecutor) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// Execute runs the workflow to completion and returns the finished run.
// Job failures are encoded in the run record; the returned error reports
// only setup problems.
func (e *DAGExecutor) Execute(ctx context.Context) (*run.WorkflowRun, error) {
	log := logger.FromContext(ctx)

	if e.opts.Job != "" {
		if _, ok := e.workflow.Jobs[e.opts.Job]; !ok {
			return nil, fmt.Errorf("job %q is not defined in workflow %q", e.opts.Job, e.workflow.Name)
		}
		log.Warn("running a single job, its dependencies are not executed", "job", e.opts.Job)
	}

	r := run.NewWorkflowRun(e.workflow.Name, e.jobNames(), e.opts.DryRun)
	r.MarkStarted()
	e.persist(ctx, r)
	log.Info("workflow run started",
		"workflow", e.workflow.Name, "run_id", r.ID, "jobs", len(r.JobResults), "dry_run", e.opts.DryRun)

	maxCost := 0.0
	if e.workflow.MaxCostUSD != nil {
		maxCost = *e.workflow.MaxCostUSD
	}
	guard := guardrail.New(maxCost, e.opts.MaxConcurrent)

	ectx := expr.NewContext()
	ectx.SetVariable("workflow", e.workflow.Name)
	ectx.SetVariable("run_id", r.ID)

	results := make(chan *run.JobResult)
	inflight := 0
	// Session IDs reported by finished jobs, for continue_session lookups.
	sessions := make(map[string]string)

	for !r.AllJobsFinished() {
		if e.isCancelled() || ctx.Err() != nil {
			break
		}

		progressed := e.dispatch(ctx, r, guard, ectx, sessions, results, &inflight)

		if inflight > 0 {
			res := <-results
			inflight--
			e.finishJob(ctx, r, guard, ectx, sessions, res)
			continue
		}
		if progressed {
			continue
		}

		// Nothing running and nothing dispatchable: the remaining jobs
		// have unsatisfiable dependencies.
		for _, name := range pendingJobs(r) {
			res := r.JobResult(name)
			res.MarkSkipped("Dependencies not satisfied")
			ectx.SetStatus(name, res.Status)
			e.notify(res)
		}
		e.persist(ctx, r)
	}

	for inflight > 0 {
		res := <-results
		inflight--
		e.finishJob(ctx, r, guard, ectx, sessions, res)
	}

	if e.isCancelled() || ctx.Err() != nil {
		for _, name := range pendingJobs(r) {
			res := r.JobResult(name)
			res.MarkCancelled()
			e.notify(res)
		}
		r.MarkCancelled()
	} else if failed := r.FailedJobCount(); failed > 0 {
		r.MarkFailed(fmt.Sprintf("%d job(s) failed", failed))
	} else {
		r.MarkCompleted()
	}
	e.persist(ctx, r)

	log.Info("workflow run finished", "run_id", r.ID, "status", r.Status,
		"completed", r.CompletedJobCount(), "failed", r.FailedJobCount(),
		"skipped", r.SkippedJobCount(), "cost_usd", r.TotalCost())
	return r, nil
}

// dispatch starts every ready job up to the concurrency cap. Returns true
// when it changed any job's state, so the caller can tell progress from a
// stuck graph.
func (e *DAGExecutor) dispatch(ctx context.Context, r *run.WorkflowRun, guard *guardrail.Guardrails,
	ectx *expr.Context, sessions map[string]string, results chan<- *run.JobResult, inflight *int) bool {
	log := logger.FromContext(ctx)
	progressed := false

	for _, name := range e.readyJobs(r) {
		if *inflight >= guard.MaxConcurrent() {
			break
		}

		if err := guard.CanStartJob(name, 0); err != nil {
			res := r.JobResult(name)
			res.MarkFailed(err.Error())
			ectx.SetStatus(name, res.Status)
			e.skipDependents(r, ectx, name)
			e.notify(res)
			progressed = true
			continue
		}

		job := e.workflow.Jobs[name]
		var tmpl *agent.Config
		if job.UsesAgent() {
			var err error
			tmpl, err = e.resolveAgent(ctx, job.Agent)
			if err != nil {
				res := r.JobResult(name)
				res.MarkFailed(err.Error())
				ectx.SetStatus(name, res.Status)
				e.skipDependents(r, ectx, name)
				e.notify(res)
				progressed = true
				continue
			}
		}

		outputDir := ""
		if e.store != nil && !e.opts.DryRun {
			dir, err := e.store.JobOutputDir(e.workflow.Name, r.ID, name)
			if err != nil {
				log.Warn("failed to create job output directory", "job", name, "error", err)
			} else {
				outputDir = dir
			}
		}

		guard.SetTurnLimit(name, e.turnLimit(name, tmpl))
		r.JobResult(name).MarkStarted()
		e.notify(r.JobResult(name))

		sessionID := ""
		if job.ContinueSession != "" {
			sessionID = sessions[job.ContinueSession]
		}
		req := JobRequest{
			Workflow:  e.workflow,
			JobName:   name,
			Template:  tmpl,
			Context:   ectx.Clone(),
			OutputDir: outputDir,
			SessionID: sessionID,
			DryRun:    e.opts.DryRun,
		}
		go func() {
			results <- e.runner.Run(ctx, req)
		}()
		*inflight++
		progressed = true
	}
	return progressed
}

// finishJob folds a worker's result back into the run. Runs on the scheduler
// goroutine only.
func (e *DAGExecutor) finishJob(ctx context.Context, r *run.WorkflowRun, guard *guardrail.Guardrails,
	ectx *expr.Context, sessions map[string]string, res *run.JobResult) {
	r.UpdateJobResult(res)
	if res.Cost != nil {
		guard.RecordCost(*res.Cost)
	}
	ectx.SetStatus(res.JobName, res.Status)
	if len(res.Outputs) > 0 {
		ectx.SetOutputs(res.JobName, res.Outputs)
	}
	if res.SessionID != "" {
		sessions[res.JobName] = res.SessionID
	}
	if res.Status == core.JobFailed {
		e.skipDependents(r, ectx, res.JobName)
	}
	e.persist(ctx, r)
	e.notify(res)
}

// skipDependents cascades a failure: every transitive dependent that is
// still pending is skipped. Jobs skipped by a false condition do not cascade;
// their dependents stay eligible.
func (e *DAGExecutor) skipDependents(r *run.WorkflowRun, ectx *expr.Context, failed string) {
	for _, name := range e.workflow.Dependents(failed) {
		res := r.JobResult(name)
		if res == nil || res.Status != core.JobPending {
			continue
		}
		res.MarkSkipped(fmt.Sprintf("Dependency '%s' failed", failed))
		ectx.SetStatus(name, res.Status)
		e.notify(res)
		e.skipDependents(r, ectx, name)
	}
}

// readyJobs returns the pending jobs whose dependencies are all satisfied,
// in deterministic order.
func (e *DAGExecutor) readyJobs(r *run.WorkflowRun) []string {
	var ready []string
	for name, res := range r.JobResults {
		if res.Status != core.JobPending {
			continue
		}
		if e.depsSatisfied(r, name) {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)
	return ready
}

func (e *DAGExecutor) depsSatisfied(r *run.WorkflowRun, name string) bool {
	for _, dep := range e.workflow.Jobs[name].Needs {
		res := r.JobResult(dep)
		if res == nil {
			// Single-job runs ignore the rest of the graph.
			if e.opts.Job != "" {
				continue
			}
			return false
		}
		if !res.Status.Satisfied() {
			return false
		}
	}
	return true
}

// turnLimit resolves the turn cap from the same merged settings the runner
// sends to the provider, so the ledger and the provider agree.
func (e *DAGExecutor) turnLimit(name string, tmpl *agent.Config) int {
	settings, err := ResolveSettings(e.workflow, name, tmpl)
	if err != nil {
		return e.workflow.MaxTurns(name)
	}
	return settings.MaxTurns
}

func (e *DAGExecutor) resolveAgent(ctx context.Context, name string) (*agent.Config, error) {
	if e.agents == nil {
		return nil, fmt.Errorf("no agent source configured, cannot resolve agent %q", name)
	}
	tmpl, err := e.agents.Agent(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve agent %q: %w", name, err)
	}
	return tmpl, nil
}

func (e *DAGExecutor) jobNames() []string {
	if e.opts.Job != "" {
		return []string{e.opts.Job}
	}
	return e.workflow.JobNames()
}

// persist saves the run. Persistence failures are logged but never abort the
// run; execution state lives in memory until the end.
func (e *DAGExecutor) persist(ctx context.Context, r *run.WorkflowRun) {
	if e.store == nil || e.opts.DryRun {
		return
	}
	if err := e.store.SaveRun(ctx, r); err != nil {
		logger.FromContext(ctx).Warn("failed to persist run", "run_id", r.ID, "error", err)
	}
}

func (e *DAGExecutor) notify(res *run.JobResult) {
	if e.opts.OnJobUpdate != nil {
		e.opts.OnJobUpdate(res)
	}
}

func pendingJobs(r *run.WorkflowRun) []string {
	var pending []string
	for name, res := range r.JobResults {
		if res.Status == core.JobPending {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending
}
