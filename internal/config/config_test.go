package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.NotEmpty(t, cfg.AI.Model)
	assert.Equal(t, 3, cfg.Workflow.MaxRetries)
	assert.False(t, cfg.Workflow.AutoApprove)
	assert.True(t, cfg.Gateway.Enabled)
	assert.Equal(t, 8787, cfg.Gateway.Port)
	assert.True(t, cfg.Janitor.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Janitor.StaleAfter)
	assert.Equal(t, "info", cfg.Logging.Level)
}
