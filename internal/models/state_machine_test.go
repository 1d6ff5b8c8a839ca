package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderStateMachine_StartsPending(t *testing.T) {
	sm := NewOrderStateMachine()
	assert.Equal(t, StatePending, sm.CurrentState())
	assert.Equal(t, StatePending, sm.PreviousState())
	assert.Equal(t, 1, sm.TransitionCount(StatePending))
}

func TestStateMachine_ValidTransitionSequence(t *testing.T) {
	sm := NewOrderStateMachine()

	require.NoError(t, sm.Transition(StateExecuted, "broker_fill"))
	assert.Equal(t, StateExecuted, sm.CurrentState())
	assert.Equal(t, StatePending, sm.PreviousState())

	require.NoError(t, sm.Transition(StateOpen, "entry_filled"))
	require.NoError(t, sm.Transition(StateSLPlaced, "sl_placed"))
	require.NoError(t, sm.Transition(StateBothLive, "tp_placed"))
	require.NoError(t, sm.Transition(StateClosed, "tp_triggered"))
	assert.Equal(t, StateClosed, sm.CurrentState())
}

func TestStateMachine_RejectsUndefinedTransition(t *testing.T) {
	sm := NewOrderStateMachine()
	err := sm.Transition(StateClosed, "tp_triggered")
	require.Error(t, err)
	assert.Equal(t, StatePending, sm.CurrentState(), "failed transition must not mutate state")
}

func TestStateMachine_RejectsWrongCondition(t *testing.T) {
	sm := NewOrderStateMachine()
	err := sm.Transition(StateExecuted, "resolve_missing_cancelled")
	require.Error(t, err)
}

func TestStateMachine_SLClosesWithoutTPEverPlaced(t *testing.T) {
	sm := NewOrderStateMachine()
	require.NoError(t, sm.Transition(StateExecuted, "broker_fill"))
	require.NoError(t, sm.Transition(StateOpen, "entry_filled"))
	require.NoError(t, sm.Transition(StateSLPlaced, "sl_placed"))
	require.NoError(t, sm.Transition(StateClosed, "sl_triggered"))
}

func TestStateMachine_EmergencyCloseFromOpen(t *testing.T) {
	sm := NewOrderStateMachine()
	require.NoError(t, sm.Transition(StateExecuted, "broker_fill"))
	require.NoError(t, sm.Transition(StateOpen, "entry_filled"))
	require.NoError(t, sm.Transition(StateClosed, "emergency_close"))
}

func TestStateMachine_Copy_IsIndependent(t *testing.T) {
	sm := NewOrderStateMachine()
	require.NoError(t, sm.Transition(StateExecuted, "broker_fill"))

	clone := sm.Copy()
	require.NoError(t, clone.Transition(StateOpen, "entry_filled"))

	assert.Equal(t, StateOpen, clone.CurrentState())
	assert.Equal(t, StateExecuted, sm.CurrentState(), "original must be unaffected by mutations on the clone")
}

func TestNewOrderStateMachineFromState_Rehydration(t *testing.T) {
	sm := NewOrderStateMachineFromState(StateCancelled)
	assert.Equal(t, StateCancelled, sm.CurrentState())
	assert.Equal(t, 1, sm.TransitionCount(StateCancelled))
}
