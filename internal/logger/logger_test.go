package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/kkkkikiki/redemption/internal/config"
)

func TestNew(t *testing.T) {
	l, err := New(config.AppConfig{Environment: "production", LogLevel: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = New(config.AppConfig{Environment: "development", LogLevel: "info", Debug: true})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(config.AppConfig{Environment: "production", LogLevel: "loud"})
	assert.Error(t, err)
}
