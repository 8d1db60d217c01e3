package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"planline/internal/domain"
)

// Config models planline.yml.
type Config struct {
	Project struct {
		Name string `yaml:"name"`
	} `yaml:"project"`
	Lifecycle struct {
		Phases map[string]PhaseConfig `yaml:"phases"`
	} `yaml:"lifecycle"`
	Scoring struct {
		DefaultModel string `yaml:"default_model"`
	} `yaml:"scoring"`
	LLM struct {
		Provider  string `yaml:"provider"`
		Model     string `yaml:"model"`
		APIKeyEnv string `yaml:"api_key_env"`
	} `yaml:"llm"`
}

// PhaseConfig tunes one lifecycle phase.
type PhaseConfig struct {
	TargetDurationDays int  `yaml:"target_duration_days"`
	ApprovalRequired   bool `yaml:"approval_required"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with pl project init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Scoring.DefaultModel {
	case "", "rice", "wsjf":
	default:
		return fmt.Errorf("config.scoring.default_model must be 'rice' or 'wsjf'")
	}
	switch c.LLM.Provider {
	case "", "stub", "anthropic":
	default:
		return fmt.Errorf("config.llm.provider must be 'stub' or 'anthropic'")
	}
	if c.LLM.Provider == "anthropic" && c.LLM.Model == "" {
		return fmt.Errorf("config.llm.model is required for the anthropic provider")
	}
	for phase, pc := range c.Lifecycle.Phases {
		if _, ok := domain.PhaseOrder[phase]; !ok {
			return fmt.Errorf("config.lifecycle.phases contains unknown phase %s", phase)
		}
		if pc.TargetDurationDays < 0 {
			return fmt.Errorf("phase %s has negative target_duration_days", phase)
		}
	}
	return nil
}

// DefaultModel returns the configured scoring model, defaulting to rice.
func (c *Config) DefaultModel() string {
	if c == nil || c.Scoring.DefaultModel == "" {
		return "rice"
	}
	return c.Scoring.DefaultModel
}

// PhaseDuration returns the target duration in days for a phase,
// falling back to the built-in defaults.
func (c *Config) PhaseDuration(phase string) int {
	if c != nil {
		if pc, ok := c.Lifecycle.Phases[phase]; ok && pc.TargetDurationDays > 0 {
			return pc.TargetDurationDays
		}
	}
	return defaultPhaseDurations[phase]
}

// PhaseApprovalRequired reports whether approval gates the phase.
func (c *Config) PhaseApprovalRequired(phase string) bool {
	if c != nil {
		if pc, ok := c.Lifecycle.Phases[phase]; ok {
			return pc.ApprovalRequired
		}
	}
	return true
}

var defaultPhaseDurations = map[string]int{
	domain.PhaseConcept: 14,
	domain.PhaseDefine:  14,
	domain.PhasePlan:    14,
	domain.PhaseDevelop: 60,
	domain.PhaseLaunch:  14,
	domain.PhaseSustain: 30,
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "planline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectName string) string {
	return fmt.Sprintf(defaultTemplate, projectName)
}

// Default returns the default Config struct for a project.
func Default(projectName string) *Config {
	var cfg Config
	cfg.Project.Name = projectName
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, projectName))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `project:
  name: %s

lifecycle:
  phases:
    concept:
      target_duration_days: 14
      approval_required: true
    define:
      target_duration_days: 14
      approval_required: true
    plan:
      target_duration_days: 14
      approval_required: true
    develop:
      target_duration_days: 60
      approval_required: true
    launch:
      target_duration_days: 14
      approval_required: true
    sustain:
      target_duration_days: 30
      approval_required: false

scoring:
  default_model: rice

llm:
  provider: stub
  model: claude-sonnet-4-20250514
  api_key_env: ANTHROPIC_API_KEY
`
