package persona

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the yaml runtime configuration for a research deployment.
type Config struct {
	// PrimaryModel is the model id used by every role unless overridden.
	PrimaryModel string `yaml:"primary_model"`

	// ModelOverrides maps role names to model ids.
	ModelOverrides map[string]string `yaml:"model_overrides,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// BaseURL overrides the endpoint base URL (OpenRouter-compatible).
	BaseURL string `yaml:"base_url,omitempty"`

	// MaxToolCycles caps tool rounds per agent turn.
	MaxToolCycles int `yaml:"max_tool_cycles"`

	// RetryBudget caps active retries on empty model output.
	RetryBudget int `yaml:"retry_budget"`

	// MaxIterations caps gathering iterations per session.
	MaxIterations int `yaml:"max_iterations"`

	// Mode selects the finalization passes (fundamental, momentum, all).
	Mode string `yaml:"mode"`

	// AgentsDir holds the markdown persona definitions.
	AgentsDir string `yaml:"agents_dir"`

	// OutputDir receives exported reports; empty disables export.
	OutputDir string `yaml:"output_dir,omitempty"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		APIKeyEnv:     "OPENROUTER_API_KEY",
		MaxToolCycles: 15,
		RetryBudget:   2,
		MaxIterations: 5,
		Mode:          "all",
		AgentsDir:     "./agents",
		OutputDir:     "./output",
	}
}

// LoadConfig reads a yaml config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("persona: parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the orchestrator depends on.
func (c *Config) Validate() error {
	if c.PrimaryModel == "" {
		return fmt.Errorf("persona: primary_model is required")
	}
	if c.MaxToolCycles <= 0 {
		return fmt.Errorf("persona: max_tool_cycles must be positive")
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("persona: max_iterations must be positive")
	}
	switch c.Mode {
	case "fundamental", "momentum", "all":
	default:
		return fmt.Errorf("persona: unknown mode %q", c.Mode)
	}
	return nil
}

// ModelFor resolves the model id for a role.
func (c *Config) ModelFor(role string) string {
	if m, ok := c.ModelOverrides[role]; ok {
		return m
	}
	return c.PrimaryModel
}
