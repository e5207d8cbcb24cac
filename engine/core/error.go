package core

import (
	"errors"
	"fmt"
)

// Stable machine-readable error codes shared across the engine. Each code
// maps to one kind in the pipeline's error surface; packages own the codes
// for the failures they raise.
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeUnsupportedEntity   = "UNSUPPORTED_ENTITY"
	ErrCodeMissingToolCallID   = "MISSING_TOOL_CALL_ID"
	ErrCodeDetectorUnavailable = "DETECTOR_UNAVAILABLE"
	ErrCodeLLMUnavailable      = "LLM_UNAVAILABLE"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeIntegrity           = "INTEGRITY_ERROR"
	ErrCodeInvalidConfig       = "INVALID_CONFIGURATION"
	ErrCodeUnsupportedOp       = "UNSUPPORTED_OPERATION"
)

// Error is the structured error envelope used across engine packages.
type Error struct {
	Err     error
	Code    string
	Details map[string]any
}

// NewError creates a structured error with a stable code and optional details.
func NewError(err error, code string, details map[string]any) *Error {
	return &Error{
		Err:     err,
		Code:    code,
		Details: details,
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the stable code from err, or "" when err carries none.
func CodeOf(err error) string {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	return ""
}

// HasCode reports whether err (or any wrapped error) carries the given code.
func HasCode(err error, code string) bool {
	return CodeOf(err) == code
}
