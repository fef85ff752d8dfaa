package live

import (
	"errors"
	"fmt"
)

// ErrConfirmationDenied marks a confirmation-gated call the user
// declined. It is a normal terminal outcome, not a failure.
var ErrConfirmationDenied = errors.New("cancelled by user")

// TransportError wraps a connection-level failure. Transport errors
// affect session state; everything else stays local to one tool call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ToolExecutionError is a failure local to a single tool call. It is
// converted into that call's error result and never crashes a batch.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// RestrictedToolError is an authorization failure for an
// administrator-only tool. Execution is short-circuited but the call
// still receives a valid response entry.
type RestrictedToolError struct {
	Tool string
}

func (e *RestrictedToolError) Error() string {
	return fmt.Sprintf("tool %s is restricted to administrators", e.Tool)
}

// OperationFailed reports a terminal failed or cancelled async
// operation status. Unlike a transient check error it stops the poll
// loop on first observation.
type OperationFailed struct {
	Reason string
}

func (e *OperationFailed) Error() string {
	return "operation failed: " + e.Reason
}

// PollingTimeout reports an async operation whose status poller
// exhausted its attempt budget. Surfaced as a ledger notification,
// never thrown through the dispatch path.
type PollingTimeout struct {
	Operation string
	Attempts  int
}

func (e *PollingTimeout) Error() string {
	if e.Operation == "" {
		return fmt.Sprintf("still pending after %d status checks", e.Attempts)
	}
	return fmt.Sprintf("operation %s still pending after %d status checks", e.Operation, e.Attempts)
}
