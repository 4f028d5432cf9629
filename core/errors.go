package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRunStateTransition reports a status change outside the transition table.
	ErrInvalidRunStateTransition = errors.New("invalid run state transition")
	// ErrRunNotFound reports an unknown run id.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunCancelled reports an attempt to continue a cancelled run.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrModelCallLimit reports that a run exceeded its model call budget.
	ErrModelCallLimit = errors.New("model call limit exceeded")
	// ErrNotFound is returned by stores for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrEmptyID is returned by stores when the session id is empty.
	ErrEmptyID = errors.New("session ID cannot be empty")
)

// ModelProviderError wraps a failure of the model-provider call. It aborts
// the whole turn and moves the run to error.
type ModelProviderError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("model provider error: %v", e.Err)
	}
	return fmt.Sprintf("model provider error [%s/%s]: %v", e.Provider, e.Model, e.Err)
}

func (e *ModelProviderError) Unwrap() error { return e.Err }

// ToolExecutionError is a tool failure. It is recorded as the result of the
// invocation and never aborts the run.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// UnresolvedInvocation names one invocation that blocks a resume.
type UnresolvedInvocation struct {
	ID       string
	ToolName string
	Reason   string
}

// InvalidResumeError is raised synchronously when resume is attempted while
// invocations are still unresolved, or on a record that cannot be resumed.
type InvalidResumeError struct {
	RunID      string
	Status     RunStatus
	Unresolved []UnresolvedInvocation
}

func (e *InvalidResumeError) Error() string {
	if len(e.Unresolved) == 0 {
		return fmt.Sprintf("invalid resume of run %s in status %s", e.RunID, e.Status)
	}
	parts := make([]string, len(e.Unresolved))
	for i, u := range e.Unresolved {
		parts[i] = fmt.Sprintf("%s(%s): %s", u.ToolName, u.ID, u.Reason)
	}
	return fmt.Sprintf("invalid resume of run %s: unresolved invocations %s", e.RunID, strings.Join(parts, "; "))
}

// Is lets errors.Is(err, ErrRunCancelled) match a resume of a cancelled run.
func (e *InvalidResumeError) Is(target error) bool {
	return target == ErrRunCancelled && e.Status == RunStatusCancelled
}

// UnknownGatingClassError reports a gating declaration outside the closed set.
type UnknownGatingClassError struct {
	Tool  string
	Value string
}

func (e *UnknownGatingClassError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("unknown gating class %q", e.Value)
	}
	return fmt.Sprintf("unknown gating class %q for tool %s", e.Value, e.Tool)
}

// StorageUnavailableError reports a session storage failure. The engine
// degrades to in-memory session state when it sees one.
type StorageUnavailableError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("session storage unavailable during %s of %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }
