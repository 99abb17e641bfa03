package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agentctl/agentctl/pkg/logger"
)

// ClaudeCLI shells out to the `claude` CLI in headless JSON mode. Token and
// cost accounting comes from the CLI's result envelope.
type ClaudeCLI struct {
	// Path to the claude executable; resolved via PATH when left empty.
	Path string
}

func NewClaudeCLI() *ClaudeCLI {
	return &ClaudeCLI{Path: "claude"}
}

func (p *ClaudeCLI) Name() string {
	return "claude-cli"
}

func (p *ClaudeCLI) Execute(ctx context.Context, req Request) (*Response, error) {
	args := []string{"--print", "--output-format", "json"}
	if req.SessionID != "" {
		args = append(args, "--resume", req.SessionID)
	}
	args = append(args, req.Prompt)
	for _, tool := range req.AllowedTools {
		args = append(args, "--allowedTools", tool)
	}
	args = append(args, "--max-budget-usd", fmt.Sprintf("%.2f", req.MaxBudgetUSD))
	args = append(args, "--max-turns", fmt.Sprintf("%d", req.MaxTurns))

	path := p.Path
	if path == "" {
		path = "claude"
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = req.WorkingDirectory

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.FromContext(ctx).Debug("invoking claude cli",
		"dir", req.WorkingDirectory, "max_turns", req.MaxTurns, "max_budget_usd", req.MaxBudgetUSD)

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &ExecutionError{
				Provider: p.Name(),
				Msg:      fmt.Sprintf("claude CLI not found at %q, is it installed?", path),
				Err:      err,
			}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "claude CLI exited abnormally"
		}
		return nil, &ExecutionError{Provider: p.Name(), Msg: msg, Err: err}
	}

	return parseEnvelope(stdout.String()), nil
}

// parseEnvelope reads the CLI's JSON result document. Non-JSON output is
// tolerated and passed through as the raw reply.
func parseEnvelope(output string) *Response {
	if !gjson.Valid(output) {
		return &Response{Output: strings.TrimSpace(output), RawEnvelope: output}
	}
	data := gjson.Parse(output)
	resp := &Response{
		Output:      data.Get("result").String(),
		SessionID:   data.Get("session_id").String(),
		RawEnvelope: output,
	}
	if cost := data.Get("total_cost_usd"); cost.Exists() {
		v := cost.Float()
		resp.CostUSD = &v
	}
	if usage := data.Get("usage"); usage.Exists() {
		// Input accounting includes cache writes and reads.
		in := int(usage.Get("input_tokens").Int() +
			usage.Get("cache_creation_input_tokens").Int() +
			usage.Get("cache_read_input_tokens").Int())
		resp.InputTokens = &in
		if out := usage.Get("output_tokens"); out.Exists() {
			v := int(out.Int())
			resp.OutputTokens = &v
		}
	}
	return resp
}
