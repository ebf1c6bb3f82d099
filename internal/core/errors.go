package core

import (
	"errors"
	"fmt"
)

var (
	// ErrOverloaded is returned by the pool when the job intake is full.
	ErrOverloaded = errors.New("worker pool overloaded")

	// ErrPoolClosed is returned when a job is submitted after shutdown began.
	ErrPoolClosed = errors.New("worker pool is closed")

	// ErrNoHandler is reported when the script registers no fetch handler.
	ErrNoHandler = errors.New("script did not register a fetch handler")
)

// CompileError reports that the script source could not be loaded into a
// fresh context.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string { return "compiling script: " + e.Err.Error() }

func (e *CompileError) Unwrap() error { return e.Err }

// StartupError is fatal: the server must not start serving.
type StartupError struct {
	Op  string
	Err error
}

func (e *StartupError) Error() string { return fmt.Sprintf("startup: %s: %v", e.Op, e.Err) }

func (e *StartupError) Unwrap() error { return e.Err }

// ScriptErrorKind classifies a failed script invocation.
type ScriptErrorKind int

const (
	// Thrown means the script raised an exception or rejected its promise.
	Thrown ScriptErrorKind = iota
	// Internal means an engine-level fault unrelated to script logic.
	Internal
	// Timeout means execution exceeded the configured limit.
	Timeout
)

func (k ScriptErrorKind) String() string {
	switch k {
	case Thrown:
		return "thrown"
	case Internal:
		return "internal"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// ScriptError is the error half of an execution result.
type ScriptError struct {
	Kind    ScriptErrorKind
	Message string
	Err     error
}

func (e *ScriptError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("script %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("script %s: %s", e.Kind, e.Message)
}

func (e *ScriptError) Unwrap() error { return e.Err }

// NewThrown builds a Thrown ScriptError from the engine's exception.
func NewThrown(err error) *ScriptError {
	return &ScriptError{Kind: Thrown, Message: err.Error(), Err: err}
}

// NewInternal builds an Internal ScriptError.
func NewInternal(format string, args ...any) *ScriptError {
	err := fmt.Errorf(format, args...)
	return &ScriptError{Kind: Internal, Message: err.Error(), Err: err}
}

// IsKind reports whether err is a ScriptError of the given kind.
func IsKind(err error, kind ScriptErrorKind) bool {
	var se *ScriptError
	return errors.As(err, &se) && se.Kind == kind
}

// NeedsReset reports whether the context that produced err may hold
// corrupted state and must be recreated before serving again.
func NeedsReset(err error) bool {
	return IsKind(err, Internal) || IsKind(err, Timeout)
}
