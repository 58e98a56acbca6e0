// Package subagenterr defines the structured error taxonomy used across the
// control plane (spec §7). Every kind is a small value type implementing
// error, preserving an optional cause so errors.Is/errors.As chains survive
// across subsystem boundaries (event payloads, tool proxy results, control
// plane responses) the way runtime/agent/toolerrors preserves ToolError
// chains in the teacher codebase.
package subagenterr

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy from spec §7. Kinds classify failures,
// not error values: a single Kind may have many distinct causes.
type Kind string

const (
	// KindValidation reports a payload failing schema validation.
	KindValidation Kind = "validation_error"
	// KindPermissionDenied reports a profile blocking a tool/path.
	KindPermissionDenied Kind = "permission_denied"
	// KindApprovalRequired reports a risk score at or above threshold.
	KindApprovalRequired Kind = "approval_required"
	// KindBudgetExceeded reports a hard budget limit breach.
	KindBudgetExceeded Kind = "budget_exceeded"
	// KindTimeout reports a heartbeat/SLA breach.
	KindTimeout Kind = "timeout_error"
	// KindProvider reports an LLM provider call failure.
	KindProvider Kind = "provider_error"
	// KindToolExecution reports a tool raising during execution.
	KindToolExecution Kind = "tool_execution_error"
	// KindIngestion reports a log/db write failure.
	KindIngestion Kind = "ingestion_error"
	// KindConfig reports an invalid configuration value.
	KindConfig Kind = "config_error"
)

// Error is the concrete structured error type for every Kind in the
// taxonomy. Error implements the standard error interface and supports
// errors.Is/errors.As via Unwrap, so callers can test
//
//	var se *subagenterr.Error
//	if errors.As(err, &se) && se.Kind == subagenterr.KindBudgetExceeded { ... }
type Error struct {
	// Kind classifies the failure per spec §7.
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// Reason optionally narrows Kind (e.g. "token_limit", "multiple_limits"
	// for KindBudgetExceeded; "heartbeat_timeout" vs "sla_timeout" for
	// KindTimeout).
	Reason string
	// Cause links to the underlying error, if any.
	Cause error
}

// New constructs an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind that chains cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithReason returns a copy of e with Reason set, for the budget/timeout
// kinds that need a stable sub-classification string in addition to Kind.
func (e *Error) WithReason(reason string) *Error {
	cp := *e
	cp.Reason = reason
	return &cp
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, msg, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, subagenterr.New(subagenterr.KindTimeout, "")) works as a
// kind-only match.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// As reports whether err carries the given Kind anywhere in its chain.
func As(err error, kind Kind) (*Error, bool) {
	var se *Error
	if !errors.As(err, &se) {
		return nil, false
	}
	if se.Kind != kind {
		return nil, false
	}
	return se, true
}
