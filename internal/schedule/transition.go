package schedule

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[Status][]Status{
	StatusPending:   {StatusExecuting, StatusCancelled},
	StatusExecuting: {StatusPending, StatusCompleted, StatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
// Terminal statuses have no outgoing edges.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the job to status to, or returns ErrInvalidTransition.
func (j *Job) Transition(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s (job %s)", ErrInvalidTransition, j.Status, to, j.ID)
	}
	j.Status = to
	return nil
}
