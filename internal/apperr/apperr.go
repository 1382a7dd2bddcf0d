// Package apperr defines the error taxonomy shared by every SOLVEREIGN
// service package. Handlers never hand-roll HTTP status codes: they return
// an *apperr.Error (or wrap one with errors.As) and the httpserver layer
// translates it into the standard {error_code, message, trace_id} envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping and propagation policy.
type Kind string

const (
	KindAuth       Kind = "AUTH"       // missing/expired/revoked session
	KindAuthz      Kind = "AUTHZ"      // permission denied, tenant mismatch
	KindState      Kind = "STATE"      // precondition violation
	KindValidation Kind = "VALIDATION" // schema/format/range
	KindConflict   Kind = "CONFLICT"   // concurrent mutation, duplicate key
	KindGate       Kind = "GATE"       // business gate blocked the request
	KindResource   Kind = "RESOURCE"   // advisory lock busy, queue full
	KindDependency Kind = "DEPENDENCY" // storage/solver failure
	KindRate       Kind = "RATE"       // rate-limit exhausted
	KindNotFound   Kind = "NOT_FOUND"  // resource does not exist, or is invisible to this tenant
)

// httpStatus maps each Kind to its HTTP status code per the propagation policy:
// AUTH/AUTHZ/STATE/VALIDATION/CONFLICT/GATE are recovered locally as 4xx,
// NOT_FOUND is 404, RESOURCE is 503, DEPENDENCY is 500, RATE is 429.
var httpStatus = map[Kind]int{
	KindAuth:       http.StatusUnauthorized,
	KindAuthz:      http.StatusForbidden,
	KindState:      http.StatusConflict,
	KindValidation: http.StatusUnprocessableEntity,
	KindConflict:   http.StatusConflict,
	KindGate:       http.StatusConflict,
	KindResource:   http.StatusServiceUnavailable,
	KindDependency: http.StatusInternalServerError,
	KindRate:       http.StatusTooManyRequests,
	KindNotFound:   http.StatusNotFound,
}

// Error is a classified application error carrying a stable machine-readable
// code, a human-readable message, and optional structured details.
type Error struct {
	Kind    Kind
	Code    string // stable error_code, e.g. "AUTH_REQUIRED", "ALREADY_LOCKED"
	Message string
	Details any // optional; rendered as-is in the error envelope's "details" field
	Retry   *int // optional Retry-After seconds, used for RESOURCE errors
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status code for this error's Kind.
func (e *Error) Status() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New creates a classified error with the given kind, stable code, and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap creates a classified error that wraps an underlying cause. The cause
// is never exposed in the HTTP response; it is for logging only.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// WithDetails attaches structured details (e.g. a list of violations) to the error.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// WithRetryAfter attaches a Retry-After hint in seconds, used for RESOURCE errors.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.Retry = &seconds
	return e
}

// As reports whether err is (or wraps) an *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Common, widely reused sentinel constructors. Packages are free to mint
// their own codes with New/Wrap; these cover codes named directly in the
// request pipeline and shared across more than one component.
func AuthRequired() *Error {
	return New(KindAuth, "AUTH_REQUIRED", "missing, expired, or revoked session")
}

func PermissionDenied(permission string) *Error {
	return New(KindAuthz, "PERMISSION_DENIED", fmt.Sprintf("missing permission %q", permission))
}

func NotFound(resource string) *Error {
	return New(KindNotFound, "NOT_FOUND", resource+" not found")
}

func ResourceBusy(retryAfterSeconds int) *Error {
	return New(KindResource, "RESOURCE_BUSY", "could not acquire lock, try again shortly").WithRetryAfter(retryAfterSeconds)
}

func Internal(cause error) *Error {
	return Wrap(KindDependency, "INTERNAL", "an internal error occurred", cause)
}

func IdempotencyConflict() *Error {
	return New(KindConflict, "IDEMPOTENCY_CONFLICT", "request body does not match the original request for this idempotency key")
}

func InputTooLarge() *Error {
	return New(KindValidation, "INPUT_TOO_LARGE", "request body exceeds the maximum allowed size")
}
