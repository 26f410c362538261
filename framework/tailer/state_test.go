package tailer

import (
	"testing"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{Idle, Polling, true},
		{Polling, Processing, true},
		{Polling, Idle, true},
		{Processing, Committing, true},
		{Committing, Idle, true},
		{Processing, Stopped, true},
		{Polling, Faulted, true},
		{Committing, Stopped, false},
		{Idle, Processing, false},
		{Processing, Idle, false},
		{Faulted, Polling, false},
		{Stopped, Idle, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, Faulted.Terminal())
	assert.True(t, Stopped.Terminal())
	assert.False(t, Idle.Terminal())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestTransitionError(t *testing.T) {
	err := transitionError(Idle, Committing)
	assert.True(t, core.HasCode(err, core.ErrInternal))
	assert.Contains(t, err.Error(), "idle -> committing")
}
