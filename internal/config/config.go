package config

import (
	"time"
)

// Config represents the main fieldops configuration
type Config struct {
	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Database file path (defaults to <data_dir>/fieldops.db)
	DatabasePath string `json:"database_path" mapstructure:"database_path"`

	// AI provider configuration
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Workflow configuration
	Workflow WorkflowConfig `json:"workflow" mapstructure:"workflow"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Janitor configuration
	Janitor JanitorConfig `json:"janitor" mapstructure:"janitor"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// AIConfig holds LLM provider configuration
type AIConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// WorkflowConfig holds daily-planning workflow settings
type WorkflowConfig struct {
	// MaxRetries bounds full-pipeline restarts before a plan is
	// marked terminally failed.
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`

	// AutoApprove skips the human verification gate. Intended for
	// headless runs and tests.
	AutoApprove bool `json:"auto_approve" mapstructure:"auto_approve"`

	// ApprovalTimeout bounds how long a run waits at the verification
	// gate before the plan is cancelled. Zero means wait forever.
	ApprovalTimeout time.Duration `json:"approval_timeout" mapstructure:"approval_timeout"`
}

// GatewayConfig holds websocket gateway configuration
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// JanitorConfig holds stale-plan sweeper configuration
type JanitorConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// SweepEvery is the interval between sweeps.
	SweepEvery time.Duration `json:"sweep_every" mapstructure:"sweep_every"`

	// StaleAfter is the wall-clock window after which an in-flight
	// plan is considered abandoned and marked timed out.
	StaleAfter time.Duration `json:"stale_after" mapstructure:"stale_after"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   2048,
		},
		Workflow: WorkflowConfig{
			MaxRetries:  3,
			AutoApprove: false,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Port:    8787,
		},
		Janitor: JanitorConfig{
			Enabled:    true,
			SweepEvery: 5 * time.Minute,
			StaleAfter: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			Redaction: true,
		},
	}
}
