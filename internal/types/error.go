package types

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

func (e ErrorCode) String() string {
	return string(e)
}

const (
	// 5XX
	InternalServiceError ErrorCode = "INTERNAL_SERVICE_ERROR"
	ServiceUnavailable   ErrorCode = "SERVICE_UNAVAILABLE"
	RequestTimeout       ErrorCode = "REQUEST_TIMEOUT"
	ValidationError      ErrorCode = "VALIDATION_ERROR"
	NotFound             ErrorCode = "NOT_FOUND"
	BadRequest           ErrorCode = "BAD_REQUEST"
	Forbidden            ErrorCode = "FORBIDDEN"
	TooManyRequests      ErrorCode = "TOO_MANY_REQUESTS"
	InvalidResponse      ErrorCode = "INVALID_RESPONSE"
)

// Error represents an error with an HTTP status code and an application-specific error code.
type Error struct {
	Err        error
	StatusCode int
	ErrorCode  ErrorCode
}

const UninitializedStatusCode = 0

func (e *Error) Error() string {
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the provided status code, error code, and underlying error.
// If the status code is not provided (0), it defaults to http.StatusInternalServerError(500).
// If the error code is empty, it defaults to INTERNAL_SERVICE_ERROR.
func NewError(statusCode int, errorCode ErrorCode, err error) *Error {
	if statusCode == UninitializedStatusCode {
		statusCode = http.StatusInternalServerError
	}
	if errorCode == "" {
		errorCode = InternalServiceError
	}
	return &Error{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Err:        err,
	}
}

func NewErrorWithMsg(statusCode int, errorCode ErrorCode, msg string) *Error {
	return NewError(statusCode, errorCode, errors.New(msg))
}

func NewInternalServiceError(err error) *Error {
	return &Error{
		StatusCode: http.StatusInternalServerError,
		ErrorCode:  InternalServiceError,
		Err:        err,
	}
}

// ErrorKind classifies failures of the runtime so that every component can
// decide locally whether to retry, skip, evict or escalate.
type ErrorKind string

const (
	TransientIO            ErrorKind = "TRANSIENT_IO"
	MalformedUpstreamData  ErrorKind = "MALFORMED_UPSTREAM_DATA"
	SubscriberSlow         ErrorKind = "SUBSCRIBER_SLOW"
	SubscriberDisconnected ErrorKind = "SUBSCRIBER_DISCONNECTED"
	ShutdownPhaseTimeout   ErrorKind = "SHUTDOWN_PHASE_TIMEOUT"
	Fatal                  ErrorKind = "FATAL"
)

func (k ErrorKind) String() string {
	return string(k)
}

type KindError struct {
	Kind ErrorKind
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

func NewKindError(kind ErrorKind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

func NewTransientError(err error) *KindError {
	return NewKindError(TransientIO, err)
}

func NewMalformedError(format string, args ...any) *KindError {
	return NewKindError(MalformedUpstreamData, fmt.Errorf(format, args...))
}

func NewFatalError(err error) *KindError {
	return NewKindError(Fatal, err)
}

// KindOf returns the kind of the first KindError in the chain, or an empty
// kind if the error was never classified.
func KindOf(err error) ErrorKind {
	var kindErr *KindError
	if errors.As(err, &kindErr) {
		return kindErr.Kind
	}
	return ""
}

func IsTransient(err error) bool {
	return KindOf(err) == TransientIO
}

func IsMalformed(err error) bool {
	return KindOf(err) == MalformedUpstreamData
}

func IsFatal(err error) bool {
	return KindOf(err) == Fatal
}
