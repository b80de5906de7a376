package config

import (
	"fmt"
	"strings"
)

// ValidationError describes a single invalid config field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates all validation failures
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

var supportedProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

// Validate checks the configuration for invalid values
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if !supportedProviders[cfg.AI.Provider] {
		errs = append(errs, ValidationError{
			Field:   "ai.provider",
			Message: fmt.Sprintf("unsupported provider %q (expected openai or anthropic)", cfg.AI.Provider),
		})
	}
	if cfg.AI.Model == "" {
		errs = append(errs, ValidationError{Field: "ai.model", Message: "model is required"})
	}
	if cfg.AI.Temperature < 0 || cfg.AI.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "ai.temperature", Message: "must be between 0 and 2"})
	}

	if cfg.Workflow.MaxRetries < 0 {
		errs = append(errs, ValidationError{Field: "workflow.max_retries", Message: "must not be negative"})
	}

	if cfg.Gateway.Enabled {
		if cfg.Gateway.Port <= 0 || cfg.Gateway.Port > 65535 {
			errs = append(errs, ValidationError{Field: "gateway.port", Message: "must be a valid port"})
		}
		if cfg.Gateway.SharedSecret == "" {
			errs = append(errs, ValidationError{Field: "gateway.shared_secret", Message: "required when gateway is enabled"})
		}
	}

	if cfg.Janitor.Enabled {
		if cfg.Janitor.SweepEvery <= 0 {
			errs = append(errs, ValidationError{Field: "janitor.sweep_every", Message: "must be positive"})
		}
		if cfg.Janitor.StaleAfter <= 0 {
			errs = append(errs, ValidationError{Field: "janitor.stale_after", Message: "must be positive"})
		}
	}

	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", cfg.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
