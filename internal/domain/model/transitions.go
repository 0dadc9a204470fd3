package model

import "slices"

// Action names a lifecycle step of an entry.
type Action string

// Lifecycle actions.
const (
	ActionCall     Action = "call"
	ActionComplete Action = "complete"
	ActionNoShow   Action = "no_show"
)

// transitionMap lists the statuses each action may start from.
var transitionMap = map[Action][]EntryStatus{
	ActionCall:     {StatusWaiting},
	ActionComplete: {StatusCalled},
	ActionNoShow:   {StatusCalled},
}

// targetStatus is the status an action moves an entry to.
var targetStatus = map[Action]EntryStatus{
	ActionCall:     StatusCalled,
	ActionComplete: StatusCompleted,
	ActionNoShow:   StatusNoShow,
}

// ValidTransition reports whether action may be applied to an entry in from.
func ValidTransition(action Action, from EntryStatus) bool {
	return slices.Contains(transitionMap[action], from)
}

// Target returns the status action leads to.
func (a Action) Target() (EntryStatus, bool) {
	s, ok := targetStatus[a]
	return s, ok
}

// ReleaseAction maps a terminal status to the action that produces it.
func ReleaseAction(to EntryStatus) (Action, bool) {
	switch to {
	case StatusCompleted:
		return ActionComplete, true
	case StatusNoShow:
		return ActionNoShow, true
	default:
		return "", false
	}
}
