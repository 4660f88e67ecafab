package model

import "fmt"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var terminalStatuses = map[Status]bool{
	StatusCompleted: true,
	StatusFailed:    true,
}

// Task status transitions: pending ↔ processing → terminal
// processing → pending is the retry path (failed attempt re-enqueued)
var validTaskTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
	},
	StatusProcessing: {
		StatusPending:   true, // retryable failure → back to pending
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

// IllegalTransitionError reports a status transition outside the FSM edges.
// Callers must leave the stored record untouched when they see one.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal task transition: %q → %q", e.From, e.To)
}

func ValidateTransition(from, to Status) error {
	if IsTerminal(from) {
		return &IllegalTransitionError{From: from, To: to}
	}
	allowed, ok := validTaskTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}
