package models

import (
	"errors"
	"fmt"
	"strings"
)

// Status represents the workflow state of a ticket.
type Status string

const (
	StatusTodo    Status = "todo"
	StatusDoing   Status = "doing"
	StatusReview  Status = "review"
	StatusDone    Status = "done"
	StatusBlocked Status = "blocked"
)

// AllStatuses lists every valid status in workflow order.
func AllStatuses() []Status {
	return []Status{StatusTodo, StatusDoing, StatusReview, StatusDone, StatusBlocked}
}

// ParseStatus converts a string into a Status, accepting common synonyms.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "todo":
		return StatusTodo, nil
	case "doing", "in_progress", "in-progress", "wip":
		return StatusDoing, nil
	case "review", "reviewing":
		return StatusReview, nil
	case "done", "completed", "closed":
		return StatusDone, nil
	case "blocked":
		return StatusBlocked, nil
	default:
		return "", fmt.Errorf("invalid status: %q", s)
	}
}

// IsTerminal reports whether no further work transitions are allowed
// (only reopen leaves a terminal status).
func (s Status) IsTerminal() bool {
	return s == StatusDone
}

// IsActive reports whether the status represents work in flight.
func (s Status) IsActive() bool {
	return s == StatusDoing || s == StatusReview
}

// ErrInvalidTransition is the sentinel matched by errors.Is for any
// rejected status change.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvalidTransitionError reports a rejected status change with both ends.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// TransitionPolicy controls the edges of the status state machine that
// are a product decision rather than fixed workflow. BlockedResume is
// the set of states a blocked ticket may return to.
type TransitionPolicy struct {
	BlockedResume []Status
}

// DefaultTransitionPolicy allows a blocked ticket to resume to any
// non-terminal state.
func DefaultTransitionPolicy() TransitionPolicy {
	return TransitionPolicy{
		BlockedResume: []Status{StatusTodo, StatusDoing, StatusReview},
	}
}

// CanResume reports whether a blocked ticket may return to the given status.
func (p TransitionPolicy) CanResume(to Status) bool {
	for _, s := range p.BlockedResume {
		if s == to {
			return true
		}
	}
	return false
}

// Validate checks a status change against the state machine:
//
//	todo -> doing              (start)
//	doing -> review            (request review)
//	review -> done | doing     (approve / changes requested)
//	non-terminal -> blocked    (block)
//	blocked -> policy targets  (unblock)
//	non-terminal -> done       (close)
//	done -> todo               (reopen)
func (p TransitionPolicy) Validate(from, to Status) error {
	if from == to {
		return &InvalidTransitionError{From: from, To: to}
	}

	switch {
	case from == StatusTodo && to == StatusDoing:
		return nil
	case from == StatusDoing && to == StatusReview:
		return nil
	case from == StatusReview && (to == StatusDone || to == StatusDoing):
		return nil
	case to == StatusBlocked && !from.IsTerminal():
		return nil
	case from == StatusBlocked && p.CanResume(to):
		return nil
	case to == StatusDone && !from.IsTerminal():
		return nil
	case from == StatusDone && to == StatusTodo:
		return nil
	}

	return &InvalidTransitionError{From: from, To: to}
}
