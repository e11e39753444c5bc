package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies run failures. Every kind is fatal for the run and
// none is retried.
type ErrorKind string

const (
	ErrInvalidPlanSyntax     ErrorKind = "INVALID_PLAN_SYNTAX"
	ErrInvalidPlanShape      ErrorKind = "INVALID_PLAN_SHAPE"
	ErrUnknownCapability     ErrorKind = "UNKNOWN_CAPABILITY"
	ErrUnresolvedBinding     ErrorKind = "UNRESOLVED_BINDING"
	ErrMalformedArguments    ErrorKind = "MALFORMED_ARGUMENTS"
	ErrEmptyCapabilityResult ErrorKind = "EMPTY_CAPABILITY_RESULT"

	// Upstream failures of the collaborating services.
	ErrCompletionFailed ErrorKind = "COMPLETION_FAILED"
	ErrCapabilityFailed ErrorKind = "CAPABILITY_FAILED"
	ErrCredentialFailed ErrorKind = "CREDENTIAL_FAILED"
	ErrCapabilityDenied ErrorKind = "CAPABILITY_DENIED"
)

// Error is a run failure with the diagnostics needed to understand it.
type Error struct {
	Kind       ErrorKind
	Message    string
	Step       int    // failing step index, 0 before execution starts
	Capability string
	Action     string
	Key        string // binding key for UNRESOLVED_BINDING
	Raw        string // raw upstream payload, when there is one

	// Bindings lists the binding keys present when the run halted.
	Bindings []string

	Cause error
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]", e.Kind)
	if e.Step > 0 {
		fmt.Fprintf(&sb, " step %d", e.Step)
		if e.Capability != "" {
			fmt.Fprintf(&sb, " (%s.%s)", e.Capability, e.Action)
		}
		sb.WriteString(":")
	}
	fmt.Fprintf(&sb, " %s", e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) withCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) withRaw(raw string) *Error {
	e.Raw = raw
	return e
}

// atStep fills step diagnostics that are not already set.
func (e *Error) atStep(step StepDescriptor) *Error {
	if e.Step == 0 {
		e.Step = step.Index
	}
	if e.Capability == "" {
		e.Capability = step.Capability
		e.Action = step.Action
	}
	return e
}

// KindOf returns the kind of a run error, or "" for any other error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is a run error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// UserMessage renders a failed run as the single message shown to the
// requester. Diagnostics stay in logs.
func UserMessage(err error) string {
	switch KindOf(err) {
	case ErrInvalidPlanSyntax, ErrInvalidPlanShape:
		return "Sorry, I couldn't work out a plan for that request. Please try rephrasing it."
	case ErrUnknownCapability:
		return "Sorry, that request needs an integration that isn't available."
	case ErrCapabilityDenied:
		return "Sorry, that request includes an action that isn't allowed."
	case ErrCredentialFailed:
		return "Sorry, I couldn't authorize access to one of your connected apps."
	case ErrUnresolvedBinding, ErrMalformedArguments, ErrEmptyCapabilityResult, ErrCapabilityFailed:
		return "Sorry, one of the steps for that request failed, so I stopped before finishing."
	default:
		return "Sorry, something went wrong while handling your request."
	}
}
