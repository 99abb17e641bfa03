package agent

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Config is a reusable agent template: a prompt plus default execution
// settings that workflow jobs can reference by name and selectively
// override.
type Config struct {
	Name             string   `json:"name"                        yaml:"name"          validate:"required"`
	Description      string   `json:"description,omitempty"       yaml:"description,omitempty"`
	WorkingDirectory string   `json:"working_directory,omitempty" yaml:"working_directory,omitempty"`
	ContextScript    string   `json:"context_script,omitempty"    yaml:"context_script,omitempty"`
	Prompt           string   `json:"prompt"                      yaml:"prompt"        validate:"required"`
	AllowedTools     []string `json:"allowed_tools,omitempty"     yaml:"allowed_tools,omitempty"`
	MaxTurns         int      `json:"max_turns,omitempty"         yaml:"max_turns,omitempty"`
	MaxBudgetUSD     float64  `json:"max_budget_usd,omitempty"    yaml:"max_budget_usd,omitempty"`
}

var structValidator = validator.New()

func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid agent %q: %w", c.Name, err)
	}
	return nil
}

// FromYAML parses and validates an agent template.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize agent %q: %w", c.Name, err)
	}
	return data, nil
}
