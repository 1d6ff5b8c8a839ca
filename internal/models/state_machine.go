package models

import (
	"fmt"
	"time"
)

// PositionState is the lifecycle phase of a tracked order, spanning both
// the exchange-reported status (pending/executed/cancelled) and, for entry
// orders, the dependent position phases that follow a fill.
type PositionState string

const (
	// StatePending mirrors OrderStatus pending: live on the exchange.
	StatePending PositionState = "pending"
	// StateExecuted mirrors OrderStatus executed: filled.
	StateExecuted PositionState = "executed"
	// StateCancelled mirrors OrderStatus cancelled: cancelled or rejected.
	StateCancelled PositionState = "cancelled"

	// StateOpen: an entry has filled and the dependent position is open,
	// with SL/TP placement still pending.
	StateOpen PositionState = "open"
	// StateSLPlaced: the stop-loss leg is live; take-profit may still be pending.
	StateSLPlaced PositionState = "sl_placed"
	// StateBothLive: both SL and TP are live on the exchange.
	StateBothLive PositionState = "both_live"
	// StateClosed: the position closed, by SL, TP, or emergency close.
	StateClosed PositionState = "closed"
)

// StateTransition defines one allowed move in the lifecycle.
type StateTransition struct {
	From        PositionState
	To          PositionState
	Condition   string
	Description string
}

// ValidTransitions enumerates every lifecycle move this supervisor performs.
var ValidTransitions = []StateTransition{
	{StatePending, StateExecuted, "broker_fill", "Broker reports the order filled"},
	{StatePending, StateCancelled, "broker_cancel", "Broker reports the order cancelled"},
	{StatePending, StateExecuted, "resolve_missing_filled", "Order vanished from listing; portfolio confirms a fill"},
	{StatePending, StateCancelled, "resolve_missing_cancelled", "Order vanished from listing; portfolio shows no position"},

	{StateExecuted, StateOpen, "entry_filled", "Entry order filled, dependent position opened"},

	{StateOpen, StateSLPlaced, "sl_placed", "Stop-loss leg placed"},
	{StateOpen, StateClosed, "emergency_close", "SL placement guard expired, market close submitted"},

	{StateSLPlaced, StateBothLive, "tp_placed", "Take-profit leg placed alongside the live stop-loss"},
	{StateSLPlaced, StateClosed, "sl_triggered", "Stop-loss filled, position closed"},

	{StateBothLive, StateClosed, "sl_triggered", "Stop-loss filled, sibling take-profit cancelled"},
	{StateBothLive, StateClosed, "tp_triggered", "Take-profit filled, sibling stop-loss cancelled"},
}

// transitionLookup provides O(1) lookup for valid transitions:
// map[fromState][toState][condition]bool.
var transitionLookup map[PositionState]map[PositionState]map[string]bool

func init() {
	transitionLookup = make(map[PositionState]map[PositionState]map[string]bool)
	for _, t := range ValidTransitions {
		if transitionLookup[t.From] == nil {
			transitionLookup[t.From] = make(map[PositionState]map[string]bool)
		}
		if transitionLookup[t.From][t.To] == nil {
			transitionLookup[t.From][t.To] = make(map[string]bool)
		}
		transitionLookup[t.From][t.To][t.Condition] = true
	}
}

// StateMachine tracks one tracked order's lifecycle phase.
type StateMachine struct {
	currentState    PositionState
	previousState   PositionState
	transitionTime  time.Time
	transitionCount map[PositionState]int
}

// NewOrderStateMachine creates a state machine starting at StatePending.
func NewOrderStateMachine() *StateMachine {
	return NewOrderStateMachineFromState(StatePending)
}

// NewOrderStateMachineFromState creates a state machine initialized to a
// given state, used when rehydrating a TrackedOrder from storage.
func NewOrderStateMachineFromState(state PositionState) *StateMachine {
	return &StateMachine{
		currentState:    state,
		previousState:   state,
		transitionTime:  time.Now().UTC(),
		transitionCount: map[PositionState]int{state: 1},
	}
}

// CurrentState returns the current lifecycle phase.
func (sm *StateMachine) CurrentState() PositionState {
	return sm.currentState
}

// PreviousState returns the phase before the last transition.
func (sm *StateMachine) PreviousState() PositionState {
	return sm.previousState
}

// IsValidTransition reports whether (to, condition) is a defined move from
// the current state, using the precomputed O(1) lookup map.
func (sm *StateMachine) IsValidTransition(to PositionState, condition string) error {
	if fromMap, ok := transitionLookup[sm.currentState]; ok {
		if toMap, ok := fromMap[to]; ok {
			if _, ok := toMap[condition]; ok {
				return nil
			}
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition %q", sm.currentState, to, condition)
}

// Transition moves to a new state, recording the time and bumping the
// per-state transition counter. Enforces I5 (the pending/executed/cancelled
// DAG plus the dependent open/sl_placed/both_live/closed chain).
func (sm *StateMachine) Transition(to PositionState, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.transitionTime = time.Now().UTC()
	sm.transitionCount[to]++
	return nil
}

// TransitionCount returns how many times the machine has entered a state.
func (sm *StateMachine) TransitionCount(state PositionState) int {
	return sm.transitionCount[state]
}

// Copy returns a deep copy of the state machine.
func (sm *StateMachine) Copy() *StateMachine {
	if sm == nil {
		return nil
	}
	cloned := &StateMachine{
		currentState:   sm.currentState,
		previousState:  sm.previousState,
		transitionTime: sm.transitionTime,
	}
	cloned.transitionCount = make(map[PositionState]int, len(sm.transitionCount))
	for k, v := range sm.transitionCount {
		cloned.transitionCount[k] = v
	}
	return cloned
}
