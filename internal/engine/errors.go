package engine

import "fmt"

// ValidationError reports rejected input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// InvalidTransitionError reports a status change the phase machine
// does not allow.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// SequenceViolationError reports a phase start attempted before its
// predecessor cleared the gate.
type SequenceViolationError struct {
	Phase    string
	Previous string
}

func (e *SequenceViolationError) Error() string {
	return fmt.Sprintf("cannot start phase %s: previous phase %s is not approved", e.Phase, e.Previous)
}

// CycleError reports a dependency cycle found during critical-path
// computation.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving %s", e.Node)
}

// CollaboratorError wraps a failure from the LLM collaborator.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
