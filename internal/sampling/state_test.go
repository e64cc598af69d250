package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateTransitions(t *testing.T) {
	all := []State{StateIdle, StateRequesting, StateSampling, StateEvaluating, StateCompleted, StateFaulted}
	allowed := map[State][]State{
		StateIdle:       {StateRequesting},
		StateRequesting: {StateSampling, StateFaulted},
		StateSampling:   {StateEvaluating, StateFaulted},
		StateEvaluating: {StateSampling, StateCompleted, StateFaulted},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	assert.False(t, State(42).CanTransition(StateIdle))
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateCompleted.Terminal())
	assert.True(t, StateFaulted.Terminal())
	assert.False(t, StateEvaluating.Terminal())
	assert.Equal(t, "state(9)", State(9).String())

	b, err := StateFaulted.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "faulted", string(b))
}

func TestStateUnmarshalText(t *testing.T) {
	var s State
	assert.NoError(t, s.UnmarshalText([]byte("evaluating")))
	assert.Equal(t, StateEvaluating, s)
	assert.Error(t, s.UnmarshalText([]byte("paused")))
}
