package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaults(t *testing.T) {
	c := New(nil)
	assert.Equal(t, "info", c.GetLevel())
	assert.Equal(t, zapcore.InfoLevel, c.GetZapLevel())
	assert.True(t, c.IsConsoleEnabled())
	assert.Equal(t, defaultMaxSize, c.GetMaxSize())
}

func TestNewMergesZeroValues(t *testing.T) {
	c := New(&LogOptions{Level: "DEBUG", FilePath: "/tmp/x.log", MaxAge: 7})
	assert.Equal(t, zapcore.DebugLevel, c.GetZapLevel())
	assert.Equal(t, "/tmp/x.log", c.GetFilePath())
	assert.Equal(t, 7, c.GetMaxAge())
	assert.Equal(t, defaultMaxBackups, c.GetMaxBackups())
	assert.Equal(t, defaultConsoleFormat, c.GetOptions().ConsoleFormat)
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, New(&LogOptions{Level: "verbose"}).GetZapLevel())
}
