package workflow

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Built-in fallbacks applied when neither the job nor the workflow defaults
// set a value.
const (
	DefaultWorkingDirectory = "~/"
	DefaultMaxBudgetUSD     = 1.0
	DefaultMaxTurns         = 10
)

func DefaultAllowedTools() []string {
	return []string{"Read", "Grep", "Glob"}
}

// ScheduleSpec is one cron trigger.
type ScheduleSpec struct {
	Cron string `json:"cron" yaml:"cron" validate:"required"`
}

// Triggers configures how a workflow starts.
type Triggers struct {
	Schedule []ScheduleSpec `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Manual   *bool          `json:"manual,omitempty"   yaml:"manual,omitempty"`
}

// ManualEnabled defaults to true when unset.
func (t *Triggers) ManualEnabled() bool {
	return t.Manual == nil || *t.Manual
}

func (t *Triggers) HasSchedule() bool {
	return len(t.Schedule) > 0
}

// Defaults are workflow-wide execution settings inherited by every job.
type Defaults struct {
	WorkingDirectory string   `json:"working_directory,omitempty" yaml:"working_directory,omitempty"`
	MaxBudgetUSD     *float64 `json:"max_budget_usd,omitempty"    yaml:"max_budget_usd,omitempty"`
	MaxTurns         *int     `json:"max_turns,omitempty"         yaml:"max_turns,omitempty"`
	AllowedTools     []string `json:"allowed_tools,omitempty"     yaml:"allowed_tools,omitempty"`
}

// Job is a single execution unit: either a reference to a reusable agent
// template or an inline prompt, never both and never neither.
type Job struct {
	Agent   string            `json:"agent,omitempty"   yaml:"agent,omitempty"`
	Prompt  string            `json:"prompt,omitempty"  yaml:"prompt,omitempty"`
	Needs   []string          `json:"needs,omitempty"   yaml:"needs,omitempty"`
	If      string            `json:"if,omitempty"      yaml:"if,omitempty"`
	Outputs []string          `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Context map[string]string `json:"context,omitempty" yaml:"context,omitempty"`

	// ContinueSession names another job whose agent session this job
	// resumes instead of starting fresh.
	ContinueSession string `json:"continue_session,omitempty" yaml:"continue_session,omitempty"`

	// Per-job overrides of workflow or agent-template settings.
	WorkingDirectory string   `json:"working_directory,omitempty" yaml:"working_directory,omitempty"`
	AllowedTools     []string `json:"allowed_tools,omitempty"     yaml:"allowed_tools,omitempty"`
	MaxTurns         *int     `json:"max_turns,omitempty"         yaml:"max_turns,omitempty"`
	MaxBudgetUSD     *float64 `json:"max_budget_usd,omitempty"    yaml:"max_budget_usd,omitempty"`
	ContextScript    string   `json:"context_script,omitempty"    yaml:"context_script,omitempty"`
}

func (j *Job) UsesAgent() bool {
	return j.Agent != ""
}

func (j *Job) HasDependencies() bool {
	return len(j.Needs) > 0
}

// Config is a named, validated dependency graph of jobs with shared defaults
// and an optional cost ceiling.
type Config struct {
	Name        string          `json:"name"                   yaml:"name"        validate:"required"`
	Description string          `json:"description,omitempty"  yaml:"description,omitempty"`
	On          Triggers        `json:"on"                     yaml:"on"`
	Defaults    *Defaults       `json:"defaults,omitempty"     yaml:"defaults,omitempty"`
	Jobs        map[string]*Job `json:"jobs"                   yaml:"jobs"        validate:"required,min=1"`
	MaxCostUSD  *float64        `json:"max_cost_usd,omitempty" yaml:"max_cost_usd,omitempty"`
}

var structValidator = validator.New()

// FromYAML parses and validates a workflow definition.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse workflow: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workflow %q: %w", c.Name, err)
	}
	return data, nil
}

// -----------------------------------------------------------------------------
// Effective settings
// -----------------------------------------------------------------------------

// WorkingDirectory resolves the effective working directory for a job.
func (c *Config) WorkingDirectory(jobName string) string {
	if job, ok := c.Jobs[jobName]; ok && job.WorkingDirectory != "" {
		return job.WorkingDirectory
	}
	if c.Defaults != nil && c.Defaults.WorkingDirectory != "" {
		return c.Defaults.WorkingDirectory
	}
	return DefaultWorkingDirectory
}

// MaxBudget resolves the effective per-job budget in USD.
func (c *Config) MaxBudget(jobName string) float64 {
	if job, ok := c.Jobs[jobName]; ok && job.MaxBudgetUSD != nil {
		return *job.MaxBudgetUSD
	}
	if c.Defaults != nil && c.Defaults.MaxBudgetUSD != nil {
		return *c.Defaults.MaxBudgetUSD
	}
	return DefaultMaxBudgetUSD
}

// MaxTurns resolves the effective turn cap for a job.
func (c *Config) MaxTurns(jobName string) int {
	if job, ok := c.Jobs[jobName]; ok && job.MaxTurns != nil {
		return *job.MaxTurns
	}
	if c.Defaults != nil && c.Defaults.MaxTurns != nil {
		return *c.Defaults.MaxTurns
	}
	return DefaultMaxTurns
}

// AllowedTools resolves the effective tool allowlist for a job.
func (c *Config) AllowedTools(jobName string) []string {
	if job, ok := c.Jobs[jobName]; ok && job.AllowedTools != nil {
		return job.AllowedTools
	}
	if c.Defaults != nil && c.Defaults.AllowedTools != nil {
		return c.Defaults.AllowedTools
	}
	return DefaultAllowedTools()
}
