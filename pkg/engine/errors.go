package engine

import (
	"errors"
	"fmt"
)

// ErrorCode identifies one of the core's failure conditions.
type ErrorCode string

const (
	// CodeNotImplemented is returned by contract operations a provider does not supply.
	CodeNotImplemented ErrorCode = "RB_ERR_NOT_IMPLEMENTED"

	// CodeMissingResourceName is returned when a resource is built without a name.
	CodeMissingResourceName ErrorCode = "RB_ERR_MISSING_RESOURCE_NAME"

	// CodeMissingResourceDataProvider is returned when a resource is built without a data provider.
	CodeMissingResourceDataProvider ErrorCode = "RB_ERR_MISSING_RESOURCE_DATA_PROVIDER"

	// CodeInvalidResourceDataProvider is returned when the supplied data provider is unusable.
	CodeInvalidResourceDataProvider ErrorCode = "RB_ERR_INVALID_RESOURCE_DATA_PROVIDER"

	// CodeInvalidResource is returned when something that is not a resource is registered or related.
	CodeInvalidResource ErrorCode = "RB_ERR_INVALID_RESOURCE"

	// CodeInvalidResourceName is returned when a lookup names an unregistered resource.
	CodeInvalidResourceName ErrorCode = "RB_ERR_INVALID_RESOURCE_NAME"
)

// Sentinels for errors.Is. Matching is by code only, so an error carrying
// operation or resource context still matches its sentinel.
var (
	ErrNotImplemented              = &Error{Code: CodeNotImplemented, Message: "not implemented"}
	ErrMissingResourceName         = &Error{Code: CodeMissingResourceName, Message: "missing resource name"}
	ErrMissingResourceDataProvider = &Error{Code: CodeMissingResourceDataProvider, Message: "missing resource data provider"}
	ErrInvalidResourceDataProvider = &Error{Code: CodeInvalidResourceDataProvider, Message: "invalid resource data provider"}
	ErrInvalidResource             = &Error{Code: CodeInvalidResource, Message: "invalid resource"}
	ErrInvalidResourceName         = &Error{Code: CodeInvalidResourceName, Message: "invalid resource name"}
)

// Error is a coded failure raised by the core.
type Error struct {
	// Code is the stable identifier of the condition.
	Code ErrorCode `json:"code"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Resource is the resource name involved, if any.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`
}

// NewError creates an error for code with the given message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Resource != "" && e.Operation != "":
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s)", e.Code, e.Message, e.Resource, e.Operation)
	case e.Resource != "":
		return fmt.Sprintf("[%s] %s (resource=%s)", e.Code, e.Message, e.Resource)
	case e.Operation != "":
		return fmt.Sprintf("[%s] %s (operation=%s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithResource returns a copy of the error carrying the resource name.
func (e *Error) WithResource(name string) *Error {
	c := *e
	c.Resource = name
	return &c
}

// WithOperation returns a copy of the error carrying the operation name.
func (e *Error) WithOperation(operation string) *Error {
	c := *e
	c.Operation = operation
	return &c
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// NotImplemented returns an ErrNotImplemented error naming the operation.
func NotImplemented(operation string) *Error {
	return ErrNotImplemented.WithOperation(operation)
}

// IsNotImplemented reports whether err is an ErrNotImplemented error.
func IsNotImplemented(err error) bool {
	return errors.Is(err, ErrNotImplemented)
}
