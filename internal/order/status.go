package order

import "errors"

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// ErrBadTransition is returned for a disallowed status change.
var ErrBadTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusFulfilled, StatusCancelled},
}

// ValidStatus reports whether s names a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusPaid, StatusFulfilled, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from may move to to. Fulfilled and cancelled
// are terminal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
