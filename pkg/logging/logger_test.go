package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	lines []string
}

func (c *captureSink) write(line string) {
	c.lines = append(c.lines, line)
}

func TestLoggerFiltersByLevel(t *testing.T) {
	sink := &captureSink{}
	logger := New(sink, LevelWarning)

	logger.Error("boom")
	logger.Warn("careful")
	logger.Info("fyi")
	logger.Debug("trace")

	require.Len(t, sink.lines, 2)
}

func TestSubloggerPrefixesLines(t *testing.T) {
	sink := &captureSink{}
	logger := New(sink, LevelDebug).Sublogger("reconciler")

	logger.Infof("processed %d files", 3)

	require.Len(t, sink.lines, 1)
	require.Contains(t, sink.lines[0], "[reconciler]")
	require.Contains(t, sink.lines[0], "processed 3 files")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	require.NotPanics(t, func() {
		logger.Info("ignored")
		logger.Sublogger("x").Error("also ignored")
	})
}
