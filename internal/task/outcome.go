package task

import (
	"context"
	"errors"
)

// Status tags the result of a handler execution
type Status int

const (
	StatusSuccess Status = iota
	StatusRetry
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusRetry:
		return "retryable_failure"
	case StatusFatal:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of a handler execution. Every handler exit is
// an Outcome; the dispatcher is the sole authority translating it into a
// queue acknowledgment action.
type Outcome struct {
	Status Status
	Result map[string]any
	Reason error
}

// Succeed builds a success outcome carrying the handler result
func Succeed(result map[string]any) Outcome {
	return Outcome{Status: StatusSuccess, Result: result}
}

// RetryFailure builds an outcome for a transient failure worth retrying
func RetryFailure(reason error) Outcome {
	return Outcome{Status: StatusRetry, Reason: reason}
}

// FatalFailure builds an outcome for a failure retrying cannot fix
func FatalFailure(reason error) Outcome {
	return Outcome{Status: StatusFatal, Reason: reason}
}

// OutcomeFromError classifies an error per the task error taxonomy:
// validation, unknown-type, and schema violations are fatal; transient
// infrastructure errors and timeouts are retryable. Unclassified errors are
// fatal so an unexpected failure never loops through the retry budget.
func OutcomeFromError(err error) Outcome {
	switch {
	case IsTransient(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return RetryFailure(err)
	default:
		return FatalFailure(err)
	}
}

// AckAction is the queue acknowledgment decision derived from an outcome
type AckAction int

const (
	// ActionAck acknowledges and discards the message
	ActionAck AckAction = iota
	// ActionRequeue republishes the message with Attempt incremented and
	// acknowledges the original delivery
	ActionRequeue
	// ActionDeadLetter rejects the message without requeue
	ActionDeadLetter
)

func (a AckAction) String() string {
	switch a {
	case ActionAck:
		return "ack"
	case ActionRequeue:
		return "requeue"
	case ActionDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// ActionFor is the total mapping from an outcome to an acknowledgment action.
// attempt is zero-based, so a message is attempted exactly maxAttempts times
// before dead-lettering.
func ActionFor(outcome Outcome, attempt, maxAttempts int) AckAction {
	switch outcome.Status {
	case StatusSuccess:
		return ActionAck
	case StatusRetry:
		if attempt+1 < maxAttempts {
			return ActionRequeue
		}
		return ActionDeadLetter
	default:
		return ActionDeadLetter
	}
}
