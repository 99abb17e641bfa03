package guardrail

import "fmt"

// DeniedError reports that a guardrail refused to start a job.
type DeniedError struct {
	Job    string
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Job != "" {
		return fmt.Sprintf("guardrail denied job %q: %s", e.Job, e.Reason)
	}
	return fmt.Sprintf("guardrail denied: %s", e.Reason)
}

// Guardrails tracks accumulated cost and per-job turn counters for one run.
//
// The ledger is scoped to a single executor instance and mutated only by the
// scheduler goroutine after each job completion, so it carries no locking.
// It is reflected into the run's totals by derivation, never persisted on
// its own.
type Guardrails struct {
	maxCostUSD    float64 // 0 means no ceiling
	currentCost   float64
	maxConcurrent int
	turnLimits    map[string]int
	turnCounts    map[string]int
}

const DefaultMaxConcurrent = 4

// New creates a ledger. maxCostUSD <= 0 disables the cost ceiling;
// maxConcurrent <= 0 falls back to DefaultMaxConcurrent.
func New(maxCostUSD float64, maxConcurrent int) *Guardrails {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Guardrails{
		maxCostUSD:    maxCostUSD,
		maxConcurrent: maxConcurrent,
		turnLimits:    make(map[string]int),
		turnCounts:    make(map[string]int),
	}
}

// CanStartJob checks the cost ceiling before a job is dispatched. The
// estimated cost of an LLM job is unknowable up front, so the executor calls
// this with estimate 0: the check cannot stop the job that blows the budget,
// only the jobs queued after it.
func (g *Guardrails) CanStartJob(job string, estimatedCost float64) error {
	if g.maxCostUSD <= 0 {
		return nil
	}
	if g.currentCost+estimatedCost > g.maxCostUSD {
		return &DeniedError{
			Job: job,
			Reason: fmt.Sprintf("workflow cost limit reached ($%.4f of $%.2f used)",
				g.currentCost, g.maxCostUSD),
		}
	}
	return nil
}

// RecordCost adds a finished job's actual cost to the ledger. This is the
// post-hoc accounting step, distinct from the CanStartJob pre-check.
func (g *Guardrails) RecordCost(actual float64) {
	if actual > 0 {
		g.currentCost += actual
	}
}

// CurrentCost returns the accumulated cost so far.
func (g *Guardrails) CurrentCost() float64 {
	return g.currentCost
}

// MaxConcurrent is the hard cap on simultaneously running jobs.
func (g *Guardrails) MaxConcurrent() int {
	return g.maxConcurrent
}

// SetTurnLimit registers a job's turn cap for CanContinue checks.
func (g *Guardrails) SetTurnLimit(job string, maxTurns int) {
	g.turnLimits[job] = maxTurns
}

// RecordTurn counts one agent turn for a job.
func (g *Guardrails) RecordTurn(job string) {
	g.turnCounts[job]++
}

// CanContinue reports whether a job is still under its turn cap. This is
// exposed for provider execution loops; the scheduler itself does not
// enforce it.
func (g *Guardrails) CanContinue(job string) bool {
	limit, ok := g.turnLimits[job]
	if !ok || limit <= 0 {
		return true
	}
	return g.turnCounts[job] < limit
}
