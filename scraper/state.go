// Package scraper holds the navigation pieces shared by the portal
// navigators: the search state machine and DataTables pagination.
package scraper

import (
	"fmt"

	"github.com/TheWillMundy/CapitolGains/utils"
)

// State is a step of a portal search.
type State int

const (
	StateStart State = iota
	StateAgreementCheck
	StateAgreementPending
	StateAgreementAccepted
	StateFormFilled
	StateSubmitted
	StateResultsPage
	StateDone
)

var stateNames = map[State]string{
	StateStart:             "start",
	StateAgreementCheck:    "agreement-check",
	StateAgreementPending:  "agreement-pending",
	StateAgreementAccepted: "agreement-accepted",
	StateFormFilled:        "form-filled",
	StateSubmitted:         "submitted",
	StateResultsPage:       "results-page",
	StateDone:              "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the legal successors of every state. A search that is
// retried goes back through Restart, never through an edge here.
var transitions = map[State][]State{
	StateStart:             {StateAgreementCheck, StateFormFilled},
	StateAgreementCheck:    {StateAgreementPending, StateAgreementAccepted},
	StateAgreementPending:  {StateAgreementAccepted},
	StateAgreementAccepted: {StateFormFilled},
	StateFormFilled:        {StateSubmitted},
	StateSubmitted:         {StateResultsPage, StateDone},
	StateResultsPage:       {StateResultsPage, StateDone},
	StateDone:              {},
}

// Progress tracks the pagination position of the current search.
type Progress struct {
	Page  int
	Total int
}

// Machine records where a navigator is in a search and rejects
// transitions the portal flow does not allow.
type Machine struct {
	name     string
	logger   *utils.Logger
	state    State
	history  []State
	Progress Progress
}

// NewMachine returns a machine in StateStart. name prefixes log lines.
func NewMachine(name string, logger *utils.Logger) *Machine {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Machine{name: name, logger: logger, history: []State{StateStart}}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// History returns every state entered since the last Restart.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// Restart begins a new attempt from StateStart.
func (m *Machine) Restart() {
	m.state = StateStart
	m.history = []State{StateStart}
	m.Progress = Progress{}
}

// Enter moves to next, failing on an edge the flow does not have.
func (m *Machine) Enter(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.logger.Debug("[%s] %s -> %s", m.name, m.state, next)
			m.state = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return fmt.Errorf("%s: illegal transition %s -> %s", m.name, m.state, next)
}
