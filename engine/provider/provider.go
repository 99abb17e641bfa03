package provider

import (
	"context"
	"fmt"
)

// Request carries everything the external agent process needs for one job.
type Request struct {
	Prompt           string
	WorkingDirectory string
	AllowedTools     []string
	MaxTurns         int
	MaxBudgetUSD     float64
	ContextScript    string
	SessionID        string
}

// Response is what the agent process reports back: the raw reply plus usage
// accounting when the backend exposes it.
type Response struct {
	Output       string
	InputTokens  *int
	OutputTokens *int
	CostUSD      *float64
	SessionID    string
	RawEnvelope  string
}

// ExecutionError reports a failed agent invocation. The executor converts it
// into a job failure; jobs are never retried.
type ExecutionError struct {
	Provider string
	Msg      string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s execution failed: %s: %v", e.Provider, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s execution failed: %s", e.Provider, e.Msg)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Provider is the boundary to the actual LLM-agent process. Implementations
// must honor context cancellation on a best-effort basis.
type Provider interface {
	Name() string
	Execute(ctx context.Context, req Request) (*Response, error)
}
