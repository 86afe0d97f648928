package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a machine-readable classification of a computation failure.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "VALIDATION_ERROR"
	CodeInsufficientData ErrorCode = "INSUFFICIENT_DATA"
	CodeDimensionError   ErrorCode = "DIMENSION_MISMATCH"
	CodeIllConditioned   ErrorCode = "ILL_CONDITIONED_COVARIANCE"
	CodeInfeasibleTarget ErrorCode = "INFEASIBLE_TARGET"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeAborted          ErrorCode = "COMPUTATION_ABORTED"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// Error carries an ErrorCode plus a human-readable message and an optional
// detail list for validation failures.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details []string  `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
}

// NewValidationError rejects malformed input before any computation runs.
func NewValidationError(message string, details ...string) *Error {
	return &Error{Code: CodeValidation, Message: message, Details: details}
}

// NewInsufficientDataError signals fewer than the minimum required periods.
func NewInsufficientDataError(got int) *Error {
	return &Error{
		Code:    CodeInsufficientData,
		Message: fmt.Sprintf("at least 2 return periods required, got %d", got),
	}
}

// NewDimensionMismatchError signals return series of unequal length.
func NewDimensionMismatchError(details ...string) *Error {
	return &Error{Code: CodeDimensionError, Message: "return series lengths differ", Details: details}
}

// NewIllConditionedError signals a singular or near-singular covariance matrix.
func NewIllConditionedError(message string) *Error {
	return &Error{Code: CodeIllConditioned, Message: message}
}

// NewInfeasibleTargetError signals a QP target unreachable under w >= 0.
func NewInfeasibleTargetError(target float64) *Error {
	return &Error{
		Code:    CodeInfeasibleTarget,
		Message: fmt.Sprintf("target return %.6f is not achievable without short sales", target),
	}
}

// NewNotFoundError signals a missing persisted resource.
func NewNotFoundError(kind, id string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s %q not found", kind, id)}
}

// NewAbortedError converts a context cancellation into a typed condition so
// callers can distinguish a caller-imposed timeout from a computation failure.
func NewAbortedError(cause error) *Error {
	return &Error{Code: CodeAborted, Message: fmt.Sprintf("computation aborted: %v", cause)}
}

// CodeOf extracts the ErrorCode from err, or CodeInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
