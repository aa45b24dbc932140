// Package cerrors defines the error taxonomy shared by the action, pipeline
// and transaction packages: sentinel errors for simple "not in the right
// state" conditions, and small struct types for errors that carry detail a
// caller may inspect with errors.As (only HookError, which carries one
// underlying error, implements Unwrap), following the shape of
// go.alis.build/atom's errors package.
package cerrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNoForwardDefined is returned by Execute when an Action has no
	// forward callable.
	ErrNoForwardDefined = errors.New("compose: no forward callable defined")

	// ErrNoReverseDefined is returned by Undo when an Action has no
	// reverse callable, and by UnitAction preparation when no reverse was
	// ever registered.
	ErrNoReverseDefined = errors.New("compose: no reverse callable defined")

	// ErrAlreadyPrepared is returned by Prepare on a StatefulAction whose
	// state is already bound, and by the template-mode call operator once
	// an action has been prepared.
	ErrAlreadyPrepared = errors.New("compose: action already prepared")

	// ErrNotAnAction is returned by ActionPipeline.Append when the
	// supplied value doesn't satisfy the minimal Action contract.
	ErrNotAnAction = errors.New("compose: value does not implement Execute/Undo/SetStreamer")

	// ErrNoSinkMethod is returned by SetStreamer when given a nil sink.
	ErrNoSinkMethod = errors.New("compose: info streamer has no Receive method")

	// ErrWrongSide names a side value outside {forward, reverse}. No
	// function in this module returns it: Action.AddHook does not validate
	// its side and files every side other than stream.SideReverse under
	// the forward hook list.
	ErrWrongSide = errors.New("compose: wrong action side")

	// ErrAlreadyBegun is returned by Manager.Add/SetMutex once a Begin
	// scope is active, and by Manager.Begin if called re-entrantly.
	ErrAlreadyBegun = errors.New("compose: transactions have begun")

	// ErrNotBegun is returned by Manager.Execute/Rollback/Commit outside
	// of a Begin scope.
	ErrNotBegun = errors.New("compose: transactions have not begun")
)

// ActionKeysError reports a mismatch between the keys supplied to Prepare
// and an action's declared required keys, or a required reverse key that
// went missing after a successful forward call.
type ActionKeysError struct {
	// Reason is one of "missing", "superfluous" or "rollback-prereq".
	Reason string
	Keys   []string
}

func (e *ActionKeysError) Error() string {
	switch e.Reason {
	case "missing":
		return fmt.Sprintf("compose: missing keys for preparation: %v", e.Keys)
	case "superfluous":
		return fmt.Sprintf("compose: superfluous keys for preparation: %v", e.Keys)
	case "rollback-prereq":
		return fmt.Sprintf("compose: missing required reverse keys after forward: %v", e.Keys)
	default:
		return fmt.Sprintf("compose: action keys error (%s): %v", e.Reason, e.Keys)
	}
}

// NewMissingKeysError reports kwargs missing from a Prepare call.
func NewMissingKeysError(keys []string) error {
	return &ActionKeysError{Reason: "missing", Keys: keys}
}

// NewSuperfluousKeysError reports kwargs unexpected in a Prepare call.
func NewSuperfluousKeysError(keys []string) error {
	return &ActionKeysError{Reason: "superfluous", Keys: keys}
}

// NewRollbackPrereqMissingError reports required reverse keys absent from
// state after a successful forward call.
func NewRollbackPrereqMissingError(keys []string) error {
	return &ActionKeysError{Reason: "rollback-prereq", Keys: keys}
}

// SimulateError reports a failure in ActionPipeline.SimulateUntil: either a
// log entry that doesn't match the expected next action (Mismatch), or
// trailing log entries left over once both pipeline phases are exhausted
// (Incomplete).
type SimulateError struct {
	Reason   string // "mismatch" or "incomplete"
	Expected string
	Got      string
}

func (e *SimulateError) Error() string {
	if e.Reason == "incomplete" {
		return fmt.Sprintf("compose: simulate log has unconsumed entries starting at %q", e.Got)
	}
	return fmt.Sprintf("compose: simulate log mismatch: expected %q, got %q", e.Expected, e.Got)
}

// NewSimulateMismatchError reports that the next log entry does not name
// the next action on the side being replayed.
func NewSimulateMismatchError(expected, got string) error {
	return &SimulateError{Reason: "mismatch", Expected: expected, Got: got}
}

// NewSimulateIncompleteError reports that the log had more entries than the
// pipeline had actions to replay them against.
func NewSimulateIncompleteError(next string) error {
	return &SimulateError{Reason: "incomplete", Got: next}
}

// KeyMissingError is returned by refmap.Map.Get for an absent key, or for a
// Ref chain that either terminates on an absent key or exceeds the maximum
// resolution depth (a "cycle" reason).
type KeyMissingError struct {
	Key    string
	Reason string // "" for a plain miss, "cycle" for a depth-bound trip
}

func (e *KeyMissingError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("compose: key %q missing (%s)", e.Key, e.Reason)
	}
	return fmt.Sprintf("compose: key %q missing", e.Key)
}

// NewKeyMissingError builds a KeyMissingError. reason may be empty.
func NewKeyMissingError(key, reason string) error {
	return &KeyMissingError{Key: key, Reason: reason}
}

// DoomedError is raised by Manager.Begin when the body of the transaction
// scope fails and either a rollback was already attempted before the
// failure, or the rollback triggered by the failure itself fails. It
// carries every formatted trace accumulated across the scope, body
// exception first.
type DoomedError struct {
	Msg    string
	Traces []string
}

func (e *DoomedError) Error() string {
	return fmt.Sprintf("compose: doomed: %s (%d traces)", e.Msg, len(e.Traces))
}

// NewDoomedError builds a DoomedError.
func NewDoomedError(msg string, traces []string) error {
	return &DoomedError{Msg: msg, Traces: traces}
}

// HookError wraps an error raised from within a hook's enter or exit phase.
type HookError struct {
	Side  string
	Phase string // "enter" or "exit"
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("compose: %s hook %s failed: %v", e.Side, e.Phase, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
