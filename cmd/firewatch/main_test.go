package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = newLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = newLogger("chatty")
	assert.Error(t, err)
}

func TestRootCmd_RejectsBadFlags(t *testing.T) {
	tests := [][]string{
		{"-d", "abc"},
		{"-i", "one"},
		{"-d", "2"},
		{"--provider", "tpu"},
	}

	for _, args := range tests {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(nopWriter{})
		cmd.SetErr(nopWriter{})
		assert.Error(t, cmd.Execute(), "%v", args)
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
