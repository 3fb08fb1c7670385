package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "offsetup.log")
	l, err := New(Options{Env: "production", File: file})
	require.NoError(t, err)

	l.Info("installed", zap.String("step", "pkg/apt/redis"), Redacted("password"))
	_ = l.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"step":"pkg/apt/redis"`)
	assert.Contains(t, string(data), `"password":"***"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestVerbosityEnablesDebug(t *testing.T) {
	l, err := New(Options{Env: "development", Verbosity: 1})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	l, err = New(Options{Env: "development"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}

func TestUnknownEnv(t *testing.T) {
	_, err := New(Options{Env: "qa"})
	assert.Error(t, err)
}
