// Package domain provides core business rules for the cleaning tasks bounded
// context: the task status machine and payment status values.
package domain

// Status is the lifecycle state of a cleaning task.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
	StatusFailed     Status = "failed"
)

// transitions is the exhaustive table of allowed status changes.
// Terminal statuses have no outgoing transitions.
var transitions = map[Status]map[Status]bool{
	StatusScheduled: {
		StatusAssigned: true,
		StatusCanceled: true,
	},
	StatusAssigned: {
		StatusInProgress: true,
		StatusCanceled:   true,
		StatusFailed:     true,
		StatusScheduled:  true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// IsKnown returns true if s is a member of the status set.
func IsKnown(s Status) bool {
	switch s {
	case StatusScheduled, StatusAssigned, StatusInProgress,
		StatusCompleted, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true if no transitions leave s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0 && IsKnown(s)
}

// CanTransition returns true if moving from one status to another is allowed
// by the lifecycle table.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// PaymentStatus is the payment lifecycle of a completed task.
type PaymentStatus string

const (
	PaymentNone      PaymentStatus = "none"
	PaymentRequested PaymentStatus = "requested"
	PaymentPaid      PaymentStatus = "paid"
)
