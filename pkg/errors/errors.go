// Package errors provides the unified error type and factory functions for
// the lab-report extraction core. Every layer (pipeline, gateway, fallback,
// infrastructure) uses AppError as the single carrier for structured error
// information, enabling consistent logging, metric labels, and retry
// decisions in the worker.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// stackDepth is the maximum number of frames captured per error.
const stackDepth = 32

// captureStack returns a formatted call-stack string starting above the
// factory function that requested it. Standard-library runtime frames are
// trimmed to keep traces readable in logs.
func captureStack(skip int) string {
	pcs := make([]uintptr, stackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return ""
	}
	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		f, more := frames.Next()
		if !strings.Contains(f.File, "runtime/") {
			fmt.Fprintf(&sb, "\n\t%s:%d %s", f.File, f.Line, f.Function)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// AppError
// ---------------------------------------------------------------------------

// AppError is the single structured error type used throughout the module.
// It satisfies the standard error interface and supports Go 1.13+ wrapping so
// errors.Is / errors.As / errors.Unwrap work across layers.
//
// Usage:
//
//	return errors.New(errors.ErrCodeGatewayTimeout, "completion call exceeded deadline")
//	return errors.Wrap(err, errors.ErrCodeStorage, "failed to load raw pages")
//	return errors.InvalidInput("document has no pages").WithDetail("document_id=" + id)
type AppError struct {
	// Code uniquely identifies the failure category.
	Code ErrorCode

	// Message is the primary human-readable description.
	Message string

	// Detail carries supplementary context (document IDs, chunk indices)
	// that aids debugging without polluting the primary message.
	Detail string

	// Cause is the underlying error, enabling errors.Is / errors.As
	// traversal of the full chain.
	Cause error

	// Stack holds the formatted call stack captured at creation. It is not
	// part of Error() output; structured loggers read the field directly.
	Stack string
}

// Error implements the standard error interface.
// Format: "[<code>] <message>: <detail>", detail omitted when empty.
func (e *AppError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetail returns a shallow copy of the receiver with Detail set.
// Safe to call on a nil pointer.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithCause returns a shallow copy of the receiver with Cause set to err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Cause = err
	return &clone
}

// ---------------------------------------------------------------------------
// Factories
// ---------------------------------------------------------------------------

// New constructs a fresh AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Newf constructs a fresh AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(1),
	}
}

// Wrap constructs an AppError wrapping an existing error. If err is nil,
// Wrap returns nil so it can be used inline on a call's error result.
// When err is already an *AppError and code is ErrCodeUnknown the original
// code is preserved, so cross-layer propagation does not lose the original
// classification.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == ErrCodeUnknown {
		var ae *AppError
		if errors.As(err, &ae) {
			code = ae.Code
		}
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
		Stack:   captureStack(1),
	}
}

// ---------------------------------------------------------------------------
// Chain inspection
// ---------------------------------------------------------------------------

// IsCode reports whether any error in err's chain is an *AppError with the
// given code.
//
//	if errors.IsCode(err, errors.ErrCodeGatewayTimeout) { ... }
func IsCode(err error, code ErrorCode) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) && ae.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// GetCode extracts the ErrorCode from the first *AppError in err's chain.
// Returns ErrCodeOK for nil and ErrCodeUnknown for foreign errors. Useful in
// logging and metric layers that need a single code label.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeUnknown
}

// IsGatewayFailure reports whether err indicates the external extraction
// service was unusable (timeout, unavailable, or rate limited). Callers use
// it to decide whether the deterministic fallback parser takes over.
func IsGatewayFailure(err error) bool {
	var ae *AppError
	for err != nil {
		if errors.As(err, &ae) {
			switch ae.Code {
			case ErrCodeGatewayTimeout, ErrCodeGatewayUnavailable, ErrCodeGatewayRateLimited:
				return true
			}
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsTransient reports whether err's code marks a condition worth retrying at
// the job level (worker redelivery). Parse and validation failures are
// deterministic and never transient.
func IsTransient(err error) bool {
	return transientCodes[GetCode(err)]
}

// ---------------------------------------------------------------------------
// Convenience factories for the common conditions
// ---------------------------------------------------------------------------

// InvalidInput constructs an ErrCodeInvalidInput AppError. This is the only
// failure class surfaced to callers of the extraction API; everything else
// degrades to fewer or zero biomarkers.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidInput,
		Message: message,
		Stack:   captureStack(1),
	}
}

// Internal constructs an ErrCodeInternal AppError for unexpected failures
// with no more specific code.
func Internal(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Stack:   captureStack(1),
	}
}

// GatewayTimeout constructs an ErrCodeGatewayTimeout AppError.
func GatewayTimeout(message string) *AppError {
	return &AppError{
		Code:    ErrCodeGatewayTimeout,
		Message: message,
		Stack:   captureStack(1),
	}
}

// GatewayUnavailable constructs an ErrCodeGatewayUnavailable AppError.
func GatewayUnavailable(message string) *AppError {
	return &AppError{
		Code:    ErrCodeGatewayUnavailable,
		Message: message,
		Stack:   captureStack(1),
	}
}

// ValidationRejection constructs an ErrCodeValidationRejected AppError.
// Rejections are counted by the validator, never surfaced to callers.
func ValidationRejection(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidationRejected,
		Message: message,
		Stack:   captureStack(1),
	}
}

// StructureDetection constructs an ErrCodeStructureDetection AppError.
func StructureDetection(message string) *AppError {
	return &AppError{
		Code:    ErrCodeStructureDetection,
		Message: message,
		Stack:   captureStack(1),
	}
}

// ChunkFailure constructs an ErrCodeChunkFailure AppError.
func ChunkFailure(message string) *AppError {
	return &AppError{
		Code:    ErrCodeChunkFailure,
		Message: message,
		Stack:   captureStack(1),
	}
}
