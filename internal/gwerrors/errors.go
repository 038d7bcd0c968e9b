// Package gwerrors defines the typed error taxonomy shared across the
// gateway's core components. Leaves raise a *Error with a Kind; managers
// may wrap it with fmt.Errorf("%w", ...) for context but must never
// swallow the Kind. The HTTP layer maps Kind to a status code via Status.
package gwerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the error taxonomy from spec.md §7.
type Kind string

const (
	InvalidRequest          Kind = "InvalidRequest"
	InvalidArguments        Kind = "InvalidArguments"
	InvalidEndpoint         Kind = "InvalidEndpoint"
	InvalidServiceName      Kind = "InvalidServiceName"
	ServerNotFound          Kind = "ServerNotFound"
	EndpointNotFound        Kind = "EndpointNotFound"
	ServiceOrToolNotFound   Kind = "ServiceOrToolNotFound"
	ServerAlreadyExists     Kind = "ServerAlreadyExists"
	EndpointAlreadyExists   Kind = "EndpointAlreadyExists"
	EndpointAlreadyConnected Kind = "EndpointAlreadyConnected"
	ConfigurationError      Kind = "ConfigurationError"
	ResourceLimitExceeded   Kind = "ResourceLimitExceeded"
	ToolDisabled            Kind = "ToolDisabled"
	ExternalApiError        Kind = "ExternalApiError"
	CallTimeout             Kind = "CallTimeout"
	ConnectionTimeout       Kind = "ConnectionTimeout"
	ServiceUnavailable      Kind = "ServiceUnavailable"
	Cancelled               Kind = "Cancelled"
	InternalError           Kind = "InternalError"
)

// statusByKind mirrors the table in spec.md §7.
var statusByKind = map[Kind]int{
	InvalidRequest:           http.StatusBadRequest,
	InvalidArguments:         http.StatusBadRequest,
	InvalidEndpoint:          http.StatusBadRequest,
	InvalidServiceName:       http.StatusBadRequest,
	ServerNotFound:           http.StatusNotFound,
	EndpointNotFound:         http.StatusNotFound,
	ServiceOrToolNotFound:    http.StatusNotFound,
	ServerAlreadyExists:      http.StatusConflict,
	EndpointAlreadyExists:    http.StatusConflict,
	EndpointAlreadyConnected: http.StatusConflict,
	ConfigurationError:       http.StatusUnprocessableEntity,
	ResourceLimitExceeded:    http.StatusTooManyRequests,
	ToolDisabled:             http.StatusForbidden,
	ExternalApiError:         http.StatusBadGateway,
	CallTimeout:              http.StatusGatewayTimeout,
	ConnectionTimeout:        http.StatusGatewayTimeout,
	ServiceUnavailable:       http.StatusServiceUnavailable,
	Cancelled:                http.StatusInternalServerError,
	InternalError:            http.StatusInternalServerError,
}

// Error is the typed error every core component raises.
type Error struct {
	Kind    Kind
	Message string
	Details interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind that preserves cause via Unwrap.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// WithDetails attaches structured details (e.g. per-field schema violations).
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Status returns the HTTP status code for an error, walking Unwrap chains
// to find the first *Error. Unknown errors map to 500.
func Status(err error) int {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		if s, ok := statusByKind[gwErr.Kind]; ok {
			return s
		}
	}
	return http.StatusInternalServerError
}

// KindOf extracts the Kind from an error, defaulting to InternalError.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return InternalError
}

// DetailsOf extracts Details, if any.
func DetailsOf(err error) interface{} {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Details
	}
	return nil
}
