package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures. The split matters for
// propagation: validation kinds recover inside the pipeline, dispatch
// kinds recover at the result shaper, and the side-effect kinds are
// never surfaced to the model at all.
type ErrorKind string

const (
	KindMalformedInput      ErrorKind = "malformed_input"
	KindConstraintViolation ErrorKind = "constraint_violation"
	KindUnknownTool         ErrorKind = "unknown_tool"
	KindHandlerFailure      ErrorKind = "handler_failure"
	KindAuditWriteFailure   ErrorKind = "audit_write_failure"
	KindPromotionFailure    ErrorKind = "promotion_failure"
)

// CodedError is implemented by domain errors that carry a machine-readable code.
type CodedError interface {
	error
	ErrorCode() string
}

// PipelineError is a tool-call failure with a model-safe message and an
// internal cause. Message must be informative enough for the model to
// self-correct; Err is operator-facing only and never crosses the model
// boundary.
type PipelineError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func (e *PipelineError) ErrorCode() string { return string(e.Kind) }

// ModelMessage returns the text safe to hand back to the model.
func (e *PipelineError) ModelMessage() string { return e.Message }

// MalformedInput reports a parse failure of raw tool arguments.
func MalformedInput(toolName string, cause error) *PipelineError {
	return &PipelineError{
		Kind:    KindMalformedInput,
		Message: fmt.Sprintf("Invalid parameters for %s: arguments are not valid JSON for the declared schema.", toolName),
		Err:     cause,
	}
}

// ConstraintViolation reports a schema-rule failure, naming the offending
// fields so the model can correct the call.
func ConstraintViolation(toolName string, detail string, cause error) *PipelineError {
	return &PipelineError{
		Kind:    KindConstraintViolation,
		Message: fmt.Sprintf("Invalid parameters for %s: %s", toolName, detail),
		Err:     cause,
	}
}

// UnknownTool reports a call to a tool with no registered handler.
func UnknownTool(toolName string) *PipelineError {
	return &PipelineError{
		Kind:    KindUnknownTool,
		Message: fmt.Sprintf("Tool %q is not available.", toolName),
	}
}

// HandlerFailure wraps a backend action error. The internal error stays in
// Err; the model sees only the sanitized message.
func HandlerFailure(toolName string, cause error) *PipelineError {
	return &PipelineError{
		Kind:    KindHandlerFailure,
		Message: fmt.Sprintf("Tool %s failed to complete. The request was not applied; retry or adjust the parameters.", toolName),
		Err:     cause,
	}
}

// AsPipelineError extracts a *PipelineError from err, or wraps err as a
// HandlerFailure-kind error when it is something else.
func AsPipelineError(toolName string, err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return HandlerFailure(toolName, err)
}

// IsValidationError reports whether err is a failure that must never reach
// the dispatcher.
func IsValidationError(err error) bool {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == KindMalformedInput || pe.Kind == KindConstraintViolation
}
