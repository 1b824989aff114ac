package model

import "fmt"

// ValidationError rejects malformed input. Not retryable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports a referenced case or session that does not exist.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// InvalidTransitionError reports a case status change that is not a
// forward transition. The store never silently coerces these.
type InvalidTransitionError struct {
	CaseID int64
	From   CaseStatus
	To     CaseStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("case %d: cannot transition %s -> %s", e.CaseID, e.From, e.To)
}

// StoreUnavailableError wraps a transient persistence failure. Reads may
// be retried with bounded backoff; audit writes are retried asynchronously.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// EnforcementError reports a protective or corrective platform action
// that could not be applied. It is recorded on the case as a note and
// surfaced to operators, never retried automatically.
type EnforcementError struct {
	Action string
	Err    error
}

func (e *EnforcementError) Error() string {
	return fmt.Sprintf("enforcement failed (%s): %v", e.Action, e.Err)
}

func (e *EnforcementError) Unwrap() error { return e.Err }
