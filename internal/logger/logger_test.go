package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")

	l, err := New(Config{Level: "info", File: path, Console: false})
	require.NoError(t, err)

	zl := l.GetZerolog()
	zl.Info().Str("plan_id", "p-1").Msg("plan created")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "plan created")
	assert.Contains(t, string(data), "p-1")
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "chatty", Console: false})
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, "info", l.GetZerolog().GetLevel().String())
}

func TestRedactionInFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")

	l, err := New(Config{Level: "info", File: path, Console: false, Redaction: true})
	require.NoError(t, err)

	zl := l.GetZerolog()
	zl.Info().Msg("using key sk-abcdefghijklmnopqrstuvwxyz123456")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[REDACTED]")
	assert.False(t, strings.Contains(string(data), "sk-abcdefghijklmnopqrstuvwxyz123456"))
}
