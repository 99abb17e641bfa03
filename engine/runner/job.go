package runner

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/agentctl/agentctl/engine/agent"
	"github.com/agentctl/agentctl/engine/expr"
	"github.com/agentctl/agentctl/engine/extract"
	"github.com/agentctl/agentctl/engine/provider"
	"github.com/agentctl/agentctl/engine/run"
	"github.com/agentctl/agentctl/engine/workflow"
	"github.com/agentctl/agentctl/pkg/logger"
)

// JobRunner executes a single job end to end: condition check, setting
// resolution, context gathering, prompt assembly, the provider call, and
// output extraction. It never touches shared scheduler state; everything it
// needs arrives in the JobRequest.
type JobRunner struct {
	provider  provider.Provider
	evaluator *expr.Evaluator
	extractor *extract.Extractor
}

func New(p provider.Provider) *JobRunner {
	return &JobRunner{
		provider:  p,
		evaluator: expr.New(),
		extractor: extract.New(),
	}
}

// JobRequest is everything one job execution needs. Context must be a
// snapshot owned by this request; the runner mutates its current-job scope.
type JobRequest struct {
	Workflow  *workflow.Config
	JobName   string
	Template  *agent.Config
	Context   *expr.Context
	OutputDir string
	// SessionID resumes a previous agent session when the job declares
	// continue_session; empty starts fresh.
	SessionID string
	DryRun    bool
}

// Run executes the job and returns its result. Errors are encoded in the
// result's status rather than returned: a job either finishes or fails, and
// the scheduler treats both uniformly.
func (r *JobRunner) Run(ctx context.Context, req JobRequest) *run.JobResult {
	log := logger.FromContext(ctx)
	result := run.NewJobResult(req.JobName)

	job, ok := req.Workflow.Jobs[req.JobName]
	if !ok {
		result.MarkFailed(fmt.Sprintf("job %q is not defined in workflow %q", req.JobName, req.Workflow.Name))
		return result
	}

	ectx := req.Context
	if ectx == nil {
		ectx = expr.NewContext()
	}
	if req.OutputDir != "" {
		ectx.SetCurrentJob(req.OutputDir)
		result.OutputDir = req.OutputDir
	}

	if job.If != "" {
		ok, err := r.evaluator.Evaluate(job.If, ectx)
		if err != nil {
			result.MarkFailed("Failed to evaluate condition: " + err.Error())
			return result
		}
		if !ok {
			result.MarkSkipped(fmt.Sprintf("Condition '%s' evaluated to false", job.If))
			return result
		}
	}

	result.MarkStarted()

	settings, err := ResolveSettings(req.Workflow, req.JobName, req.Template)
	if err != nil {
		result.MarkFailed(err.Error())
		return result
	}
	workDir := expandHome(settings.WorkingDirectory)

	basePrompt := job.Prompt
	if job.UsesAgent() {
		if req.Template == nil {
			result.MarkFailed(fmt.Sprintf("job %q references agent %q but no template was provided", req.JobName, job.Agent))
			return result
		}
		basePrompt = req.Template.Prompt
	}

	prompt, err := r.evaluator.Interpolate(basePrompt, ectx)
	if err != nil {
		result.MarkFailed("Failed to interpolate prompt: " + err.Error())
		return result
	}
	if section := gatherContext(ctx, settings.ContextScript, job.Context, workDir); section != "" {
		prompt = section + "\n\n" + prompt
	}
	prompt += extract.Instructions(job.Outputs)

	if req.DryRun {
		result.MarkCompleted(nil, "[DRY RUN] Would execute: "+summarize(prompt))
		return result
	}

	log.Info("executing job", "job", req.JobName, "dir", workDir,
		"max_turns", settings.MaxTurns, "max_budget_usd", settings.MaxBudgetUSD)

	resp, err := r.provider.Execute(ctx, provider.Request{
		Prompt:           prompt,
		WorkingDirectory: workDir,
		AllowedTools:     settings.AllowedTools,
		MaxTurns:         settings.MaxTurns,
		MaxBudgetUSD:     settings.MaxBudgetUSD,
		ContextScript:    settings.ContextScript,
		SessionID:        req.SessionID,
	})
	if err != nil {
		result.MarkFailed(err.Error())
		return result
	}

	result.UpdateStats(resp.InputTokens, resp.OutputTokens, resp.CostUSD)
	result.SessionID = resp.SessionID
	result.MarkCompleted(r.extractOutputs(resp.Output, job.Outputs), resp.Output)
	return result
}

// extractOutputs runs the tag and key-value strategies first, then falls back
// to a JSON block for any declared name still missing.
func (r *JobRunner) extractOutputs(response string, declared []string) map[string]string {
	outputs := r.extractor.Extract(response, declared)
	if len(outputs) == len(declared) {
		return outputs
	}
	fromJSON := r.extractor.ExtractJSON(response)
	for _, name := range declared {
		if _, ok := outputs[name]; ok {
			continue
		}
		if v, ok := fromJSON[name]; ok {
			outputs[name] = v
		}
	}
	return outputs
}

// gatherContext runs the context script and the job's named context commands
// concurrently and renders their output as a markdown section. Command
// failures are reported inline; they never fail the job.
func gatherContext(ctx context.Context, script string, commands map[string]string, dir string) string {
	if script == "" && len(commands) == 0 {
		return ""
	}

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	outputs := make([]string, len(names))
	var scriptOut string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	if script != "" {
		g.Go(func() error {
			scriptOut = runShell(gctx, script, dir)
			return nil
		})
	}
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			outputs[i] = runShell(gctx, commands[name], dir)
			return nil
		})
	}
	// Workers never return errors; Wait is just the join point.
	_ = g.Wait()

	var b strings.Builder
	b.WriteString("## Context\n")
	if scriptOut != "" {
		b.WriteString("\n" + scriptOut + "\n")
	}
	for i, name := range names {
		fmt.Fprintf(&b, "\n### %s\n%s\n", name, outputs[i])
	}
	return strings.TrimRight(b.String(), "\n")
}

func runShell(ctx context.Context, command, dir string) string {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Sprintf("(command failed: %v)", err)
	}
	return strings.TrimSpace(string(out))
}

func summarize(prompt string) string {
	line := prompt
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	return line
}
