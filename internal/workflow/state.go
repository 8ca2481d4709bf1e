package workflow

import "narrator/internal/stage"

// State is a pipeline state.
type State string

const (
	StateCreated      State = "created"
	StateAcquiring    State = "acquiring"
	StateAnalyzing    State = "analyzing"
	StateScripting    State = "scripting"
	StateSynthesizing State = "synthesizing"
	StateCompositing  State = "compositing"
	StateDone         State = "done"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

var forward = map[State]State{
	StateCreated:      StateAcquiring,
	StateAcquiring:    StateAnalyzing,
	StateAnalyzing:    StateScripting,
	StateScripting:    StateSynthesizing,
	StateSynthesizing: StateCompositing,
	StateCompositing:  StateDone,
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Next returns the following state on the success path. Terminal states
// return themselves.
func (s State) Next() State {
	if next, ok := forward[s]; ok {
		return next
	}
	return s
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StateFailed || to == StateCancelled {
		return true
	}
	return forward[from] == to
}

// StateForStage maps a stage name to the state a job is in while it runs.
func StateForStage(name string) (State, bool) {
	switch name {
	case stage.Acquiring:
		return StateAcquiring, true
	case stage.Analyzing:
		return StateAnalyzing, true
	case stage.Scripting:
		return StateScripting, true
	case stage.Synthesizing:
		return StateSynthesizing, true
	case stage.Compositing:
		return StateCompositing, true
	}
	return "", false
}
