package gate

import (
	"fmt"

	"github.com/MikeSquared-Agency/twin/internal/intent"
)

// State is a step of the decision machine. Every question moves forward
// through it exactly once.
type State string

const (
	StateStart      State = "START"
	StateEntailment State = "ENTAILMENT_COMPUTED"
	StateAnswered   State = "ANSWERED"
	StateRefused    State = "REFUSED"
)

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateStart:
		return to == StateEntailment || to == StateRefused
	case StateEntailment:
		return to == StateAnswered || to == StateRefused
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s State) bool {
	return s == StateAnswered || s == StateRefused
}

type machine struct {
	state State
	path  []State
}

func newMachine() *machine {
	return &machine{state: StateStart, path: []State{StateStart}}
}

func (m *machine) transition(to State) error {
	if !isAllowedTransition(m.state, to) {
		return fmt.Errorf("disallowed transition: %s -> %s", m.state, to)
	}
	m.state = to
	m.path = append(m.path, to)
	return nil
}

// Admission is what the gate does with a verdict.
type Admission int

const (
	Refuse Admission = iota
	AllowCautious
	AllowNormal
)

func (a Admission) String() string {
	switch a {
	case AllowCautious:
		return "allow_cautious"
	case AllowNormal:
		return "allow"
	default:
		return "refuse"
	}
}

var admissions = map[intent.Mode]map[Verdict]Admission{
	intent.ModeSummary: {
		VerdictNo:      Refuse,
		VerdictUnknown: AllowCautious,
		VerdictYes:     AllowNormal,
	},
	intent.ModeFact: {
		VerdictNo:      Refuse,
		VerdictUnknown: Refuse,
		VerdictYes:     AllowNormal,
	},
}

// Admit looks up the admission policy. Unknown modes or verdicts refuse.
func Admit(mode intent.Mode, v Verdict) Admission {
	if byVerdict, ok := admissions[mode]; ok {
		if a, ok := byVerdict[v]; ok {
			return a
		}
	}
	return Refuse
}
