package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind represents the kind of error
type Kind string

const (
	KindInternal   Kind = "internal"
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindBadGateway Kind = "bad_gateway"
)

// DefaultBadGatewayMessage is used when BadGateway is created without a message
const DefaultBadGatewayMessage = "Bad Gateway"

// Error represents a structured error with additional context
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]any
}

// NewError creates a new structured error
func NewError(kind Kind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Details: make(map[string]any),
	}
}

// NotFound creates an error for a missing resource. id is optional.
func NotFound(resource, id string) *Error {
	if id == "" {
		return NewError(KindNotFound, fmt.Sprintf("%s not found", resource)).
			WithDetail("resource", resource)
	}
	return NewError(KindNotFound, fmt.Sprintf("%s '%s' not found", resource, id)).
		WithDetail("resource", resource).
		WithDetail("id", id)
}

// Validation creates an error for malformed input
func Validation(message string) *Error {
	return NewError(KindValidation, message)
}

// BadGateway creates an error for an unreachable or failed upstream
func BadGateway(message string) *Error {
	if message == "" {
		message = DefaultBadGatewayMessage
	}
	return NewError(KindBadGateway, message)
}

// WithCause adds the underlying cause to the error
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	e.Details[key] = value
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Code returns the stable machine code for the error kind
func (e *Error) Code() string {
	switch e.Kind {
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindBadGateway:
		return "BAD_GATEWAY"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatusCode returns the appropriate HTTP status code for the error kind
func (e *Error) HTTPStatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf extracts a human-readable message from err, or returns fallback
// when err carries none.
func MessageOf(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e.Message != "" {
			return e.Message
		}
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// Normalize returns err as a structured error. Errors outside the taxonomy
// become BadGateway errors carrying the original as cause.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e
	}
	return BadGateway(MessageOf(err, DefaultBadGatewayMessage)).WithCause(err)
}

// Response is the JSON body written for failed requests
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes err as a JSON error response with its mapped status code
func WriteJSON(w http.ResponseWriter, err error) {
	WriteJSONStatus(w, 0, err)
}

// WriteJSONStatus writes err as a JSON error response with status, or with
// the mapped status code when status is zero
func WriteJSONStatus(w http.ResponseWriter, status int, err error) {
	e := Normalize(err)
	if status == 0 {
		status = e.HTTPStatusCode()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{Code: e.Code(), Message: e.Message})
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
