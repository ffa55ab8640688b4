package pipeline

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycle_HappyPath(t *testing.T) {
	l := NewLifecycle()
	assert.Equal(t, Initializing, l.State())

	require.NoError(t, l.Transition(Running))
	require.NoError(t, l.Transition(ShuttingDown))
	require.NoError(t, l.Transition(Terminated))

	assert.Equal(t, []State{Initializing, Running, ShuttingDown, Terminated}, l.History())
}

func TestLifecycle_SetupFailure(t *testing.T) {
	l := NewLifecycle()
	require.NoError(t, l.Transition(Terminated))
	assert.Equal(t, Terminated, l.State())
}

func TestLifecycle_Invalid(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{Initializing, ShuttingDown},
		{Running, Terminated},
		{Running, Initializing},
		{Terminated, Running},
		{ShuttingDown, Running},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.False(t, CanTransition(tt.from, tt.to))
		})
	}

	l := NewLifecycle()
	err := l.Transition(ShuttingDown)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, Initializing, l.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "SHUTTING_DOWN", ShuttingDown.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}
