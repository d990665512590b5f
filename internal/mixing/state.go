package mixing

import (
	"fmt"
	"time"
)

// State is a stage of the mixing pipeline
type State string

const (
	StateReceived         State = "received"
	StateNormalized       State = "normalized"
	StateAnalyzed         State = "analyzed"
	StateEqApplied        State = "eq_applied"
	StateSidechainApplied State = "sidechain_applied"
	StateImaged           State = "imaged"
	StateMastered         State = "mastered"
	StateScored           State = "scored"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Terminal reports whether no transition leaves the state
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// next is the only successor of each non-terminal state besides StateFailed
var next = map[State]State{
	StateReceived:         StateNormalized,
	StateNormalized:       StateAnalyzed,
	StateAnalyzed:         StateEqApplied,
	StateEqApplied:        StateSidechainApplied,
	StateSidechainApplied: StateImaged,
	StateImaged:           StateMastered,
	StateMastered:         StateScored,
	StateScored:           StateDone,
}

// Transition is one recorded state change
type Transition struct {
	From    State         `json:"from"`
	To      State         `json:"to"`
	Elapsed time.Duration `json:"elapsed"`
}

// StageError is a failed mix with the state it failed in
type StageError struct {
	State State `json:"state"`
	Err   error `json:"-"`
}

func (e *StageError) Error() string {
	return fmt.Sprintf("mix failed while %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// machine walks the pipeline states in order and records every transition
type machine struct {
	state       State
	start       time.Time
	transitions []Transition
}

func newMachine() *machine {
	return &machine{state: StateReceived, start: time.Now()}
}

// advance moves to the successor state
func (m *machine) advance() State {
	to, ok := next[m.state]
	if !ok {
		panic(fmt.Sprintf("mixing: no transition from %s", m.state))
	}
	m.record(to)
	return to
}

// fail moves to StateFailed and wraps err with the state it failed in
func (m *machine) fail(err error) error {
	failed := m.state
	m.record(StateFailed)
	return &StageError{State: failed, Err: err}
}

func (m *machine) record(to State) {
	m.transitions = append(m.transitions, Transition{
		From:    m.state,
		To:      to,
		Elapsed: time.Since(m.start),
	})
	m.state = to
}
