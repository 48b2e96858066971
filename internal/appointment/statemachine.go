package appointment

import "fmt"

// The appointment lifecycle:
//
//	scheduled -> confirmed -> in_progress -> completed
//
// cancelled and no_show are terminal and reachable from any pre-completed
// state. Reschedule and doctor transfer are self-transitions permitted only
// while the appointment is scheduled or confirmed.
var transitions = map[Status]map[Status]bool{
	StatusScheduled: {
		StatusConfirmed: true,
		StatusCancelled: true,
		StatusNoShow:    true,
	},
	StatusConfirmed: {
		StatusInProgress: true,
		StatusCancelled:  true,
		StatusNoShow:     true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusCancelled: true,
		StatusNoShow:    true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

// TransitionError names both ends of an illegal state-machine move.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// Transition validates a state-machine move, returning *TransitionError when
// the move is illegal.
func Transition(from, to Status) error {
	allowed, known := transitions[from]
	if !known || !allowed[to] {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether no further transition is permitted from s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// CanRebook reports whether the appointment may be rescheduled or transferred
// to another doctor, both of which keep the current status.
func CanRebook(s Status) bool {
	return s == StatusScheduled || s == StatusConfirmed
}
