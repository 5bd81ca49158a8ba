package models

import (
	"errors"
	"fmt"
)

// Error codes used in logs, status responses and internal error handling.
const (
	ErrCodeConfig         = "CONFIG_INVALID"
	ErrCodeNavigation     = "NAVIGATION_FAILED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeAuth           = "AUTH_FAILED"
	ErrCodeNotReady       = "NOT_READY"
	ErrCodeSessionActive  = "SESSION_ACTIVE"
	ErrCodeSessionBusy    = "SESSION_BUSY"
	ErrCodeAlreadyStarted = "ALREADY_STARTED"
	ErrCodeNotStarted     = "NOT_STARTED"
	ErrCodeReleased       = "RESOURCE_RELEASED"
	ErrCodeBrowserCrash   = "BROWSER_CRASH"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeAlreadyRunning = "ALREADY_RUNNING"
	ErrCodeNotRunning     = "NOT_RUNNING"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// VisitError is the internal error type carrying an error code.
// Target is set when the failure is tied to a specific URL.
type VisitError struct {
	Code    string
	Message string
	Target  string
	Err     error // wrapped original error
}

func (e *VisitError) Error() string {
	msg := e.Message
	if e.Target != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Target)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *VisitError) Unwrap() error {
	return e.Err
}

// NewVisitError creates a new VisitError.
func NewVisitError(code, message string, err error) *VisitError {
	return &VisitError{Code: code, Message: message, Err: err}
}

// NewTargetError creates a VisitError bound to a target URL.
func NewTargetError(code, message, target string, err error) *VisitError {
	return &VisitError{Code: code, Message: message, Target: target, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *VisitError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Error()}
}

// IsCode reports whether err (or anything it wraps) is a VisitError with code.
func IsCode(err error, code string) bool {
	var ve *VisitError
	if !errors.As(err, &ve) {
		return false
	}
	return ve.Code == code
}

// CodeOf returns the code of the outermost VisitError in err's chain, or "".
func CodeOf(err error) string {
	var ve *VisitError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}

// DetailOf converts any error to an ErrorDetail. Errors without a code are
// reported as INTERNAL_ERROR.
func DetailOf(err error) *ErrorDetail {
	var ve *VisitError
	if errors.As(err, &ve) {
		return ve.ToDetail()
	}
	return &ErrorDetail{Code: ErrCodeInternal, Message: err.Error()}
}
