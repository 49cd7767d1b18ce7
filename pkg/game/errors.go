package game

import "fmt"

// ErrInvalidTurnAction is returned for actions submitted out of turn,
// in the wrong phase, or otherwise failing validation. It is a soft
// error: callers surface it to the acting player only.
type ErrInvalidTurnAction struct {
	Reason string
}

func (e *ErrInvalidTurnAction) Error() string {
	return fmt.Sprintf("invalid turn action: %s", e.Reason)
}

func IsInvalidTurnAction(err error) bool {
	_, ok := err.(*ErrInvalidTurnAction)
	return ok
}

// ErrDuplicateAction marks a resubmission of an action whose nonce was
// already applied. Duplicates are absorbed as idempotent no-ops, never
// surfaced as failures.
type ErrDuplicateAction struct {
}

func (e *ErrDuplicateAction) Error() string {
	return "duplicate turn action"
}

func IsDuplicateAction(err error) bool {
	_, ok := err.(*ErrDuplicateAction)
	return ok
}

// ErrWriteConflict is returned after the bounded conditional-write retry
// loop is exhausted.
type ErrWriteConflict struct {
}

func (e *ErrWriteConflict) Error() string {
	return "session write conflict, please retry"
}

func IsWriteConflict(err error) bool {
	_, ok := err.(*ErrWriteConflict)
	return ok
}
