package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies a class of broker failure. Codes are part of the message protocol.
type Code string

const (
	CodeInvalidPayload         Code = "InvalidPayload"
	CodeNotFound               Code = "NotFound"
	CodeUnauthorized           Code = "Unauthorized"
	CodeNoProviderForNetwork   Code = "NoProviderForNetwork"
	CodeFeeUnavailable         Code = "FeeUnavailable"
	CodeUnhandledTokenType     Code = "UnhandledTokenType"
	CodeDerivationLimitReached Code = "DerivationLimitReached"
	CodeAlreadyResolved        Code = "AlreadyResolved"
	CodeSessionClosed          Code = "SessionClosed"
	CodeInvariantViolation     Code = "InvariantViolation"
	CodeBroadcastFailed        Code = "BroadcastFailed"
	CodeUserRejected           Code = "UserRejected"
	CodeRejected               Code = "Rejected"
	CodeExpired                Code = "Expired"
	CodeInternal               Code = "Internal"
)

// Error is a classified broker error. Data carries node supplied diagnostics, if any.
type Error struct {
	Code    Code
	Message string
	Data    string
	cause   error
}

var (
	ErrInvalidPayload         = &Error{Code: CodeInvalidPayload, Message: "invalid payload"}
	ErrNotFound               = &Error{Code: CodeNotFound, Message: "not found"}
	ErrUnauthorized           = &Error{Code: CodeUnauthorized, Message: "no valid credential"}
	ErrNoProviderForNetwork   = &Error{Code: CodeNoProviderForNetwork, Message: "no provider for network"}
	ErrFeeUnavailable         = &Error{Code: CodeFeeUnavailable, Message: "Unable to estimate fees"}
	ErrUnhandledTokenType     = &Error{Code: CodeUnhandledTokenType, Message: "Unhandled token type"}
	ErrDerivationLimitReached = &Error{Code: CodeDerivationLimitReached, Message: "Reached maximum number of derived accounts"}
	ErrAlreadyResolved        = &Error{Code: CodeAlreadyResolved, Message: "request already resolved"}
	ErrSessionClosed          = &Error{Code: CodeSessionClosed, Message: "session closed"}
	ErrInvariantViolation     = &Error{Code: CodeInvariantViolation, Message: "invariant violation"}
	ErrBroadcastFailed        = &Error{Code: CodeBroadcastFailed, Message: "Failed to send transaction"}
	ErrUserRejected           = &Error{Code: CodeUserRejected, Message: "rejected on device"}
	ErrRejected               = &Error{Code: CodeRejected, Message: "request rejected"}
	ErrExpired                = &Error{Code: CodeExpired, Message: "request expired"}
)

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error) //nolint:errorlint
	if !ok {
		return false
	}

	return t.Code == e.Code
}

// New creates a classified error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code. A nil err returns nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}

	return &Error{Code: code, Message: message, cause: err}
}

// WithData attaches node diagnostics to a classified error.
func WithData(err *Error, data string) *Error {
	cp := *err
	cp.Data = data

	return &cp
}

// NotFound is a shorthand for a NotFound error naming the missing entity.
func NotFound(entity string, key string) *Error {
	return New(CodeNotFound, "%s %q not found", entity, key)
}

// InvalidPayload is a shorthand for an InvalidPayload error.
func InvalidPayload(format string, args ...any) *Error {
	return New(CodeInvalidPayload, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return CodeInternal
}

// DataOf returns node diagnostics carried by err, if any.
func DataOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Data
	}

	return ""
}

// IsClassified reports whether err carries a broker error code.
func IsClassified(err error) bool {
	var e *Error

	return errors.As(err, &e)
}
