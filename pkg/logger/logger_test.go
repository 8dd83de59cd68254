package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerWritesToConsoleWriter(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&Config{Level: "info", Format: "json", Output: "stderr"}, &buf)
	l.Info("merged", zap.Int("workers", 4))
	_ = l.Sync()

	assert.Contains(t, buf.String(), `"msg":"merged"`)
	assert.Contains(t, buf.String(), `"workers":4`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&Config{Level: "warn", Format: "console"}, &buf)
	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.False(t, IsDebugEnabled())

	EnableDebug()
	assert.True(t, IsDebugEnabled())
	level.SetLevel(zapcore.InfoLevel)
}

func TestReplaceCapturesPackageLevelCalls(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	Replace(zap.New(core))
	defer Replace(nil)

	Warn("inconsistent totals", zap.Int64("total", 10))
	Info("ignored")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "inconsistent totals", entries[0].Message)
		assert.Equal(t, int64(10), entries[0].ContextMap()["total"])
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}
