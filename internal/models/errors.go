package models

import (
	"errors"
	"fmt"
)

// Error classes reported by the workbench. Typed errors below match these
// with errors.Is.
var (
	// ErrValidation marks a malformed or incomplete workbook row.
	ErrValidation = errors.New("validation error")

	// ErrDependencyUnresolved marks an object whose references could not be
	// found remotely or created earlier in the run.
	ErrDependencyUnresolved = errors.New("dependency unresolved")

	// ErrCreationFailed marks a create call rejected by the remote system.
	ErrCreationFailed = errors.New("creation failed")

	// ErrRemoteUnavailable marks connectivity or authentication failures.
	// It is fatal for the current action.
	ErrRemoteUnavailable = errors.New("remote unavailable")
)

// ValidationError describes a rejected workbook row.
type ValidationError struct {
	Sheet string `json:"sheet"`
	Row   int    `json:"row"`
	Field string `json:"field,omitempty"`
	Msg   string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s row %d: %s: %s", e.Sheet, e.Row, e.Field, e.Msg)
	}
	return fmt.Sprintf("%s row %d: %s", e.Sheet, e.Row, e.Msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DependencyError reports an object that could not be processed because one
// of its references did not resolve.
type DependencyError struct {
	Object     Key
	Dependency Reference
	Err        error
}

func (e *DependencyError) Error() string {
	msg := fmt.Sprintf("%s: %v: %s", e.Object, ErrDependencyUnresolved, e.Dependency)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DependencyError) Is(target error) bool { return target == ErrDependencyUnresolved }

func (e *DependencyError) Unwrap() error { return e.Err }

// CreationError carries the remote system's rejection of a create call.
type CreationError struct {
	Object  Key
	Status  int
	Message string
	Err     error
}

func (e *CreationError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Object, ErrCreationFailed)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CreationError) Is(target error) bool { return target == ErrCreationFailed }

func (e *CreationError) Unwrap() error { return e.Err }

// RemoteError reports a connectivity, authentication or server-side failure.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v: %s: HTTP %d: %v", ErrRemoteUnavailable, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrRemoteUnavailable, e.Op, e.Err)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemoteUnavailable }

func (e *RemoteError) Unwrap() error { return e.Err }
