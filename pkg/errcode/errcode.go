package errcode

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and presentation decisions.
type Kind int

const (
	// KindTransport marks network or backend availability failures. Retryable.
	KindTransport Kind = iota + 1
	// KindValidation marks user-correctable input failures. Not retryable.
	KindValidation
	// KindConflict marks policy failures such as self-targeting or a block
	// relationship. Not retryable.
	KindConflict
	// KindNotFound marks missing conversations or users. Not retryable.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error represents a business error
type Error struct {
	Code int    `json:"code"`
	Kind Kind   `json:"kind"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("errcode: %d, kind: %s, msg: %s", e.Code, e.Kind, e.Msg)
}

// New creates a new error with code, kind and message
func New(code int, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, Msg: msg}
}

// Wrap wraps an error with additional context
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code: e.Code,
		Kind: e.Kind,
		Msg:  fmt.Sprintf("%s: %v", e.Msg, err),
	}
}

// Retryable reports whether the operation may be retried as-is.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransport
}

// KindOf returns the kind of err, or KindTransport when err is not an
// *Error. Unclassified failures are treated as transport failures so a raw
// error never reaches the presentation layer untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsTransport reports whether err is a transport error
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// LocalCodeBase is the floor for locally assigned codes. Backend API codes
// stay below it, so a code's origin is never ambiguous.
const LocalCodeBase = 10000

// Common errors
var (
	// Transport errors (100xx)
	ErrBackendUnavailable = New(10001, KindTransport, "backend unavailable")
	ErrBadResponse        = New(10002, KindTransport, "malformed backend response")
	ErrInternalServer     = New(10003, KindTransport, "internal server error")

	// Validation errors (101xx)
	ErrEmptyContent  = New(10101, KindValidation, "message content is empty")
	ErrMissingTarget = New(10102, KindValidation, "target user id is empty")
	ErrInvalidParam  = New(10103, KindValidation, "invalid parameter")

	// Conflict errors (102xx)
	ErrSelfTarget = New(10201, KindConflict, "cannot open a conversation with yourself")
	ErrForbidden  = New(10202, KindConflict, "messaging is not allowed with this user")

	// NotFound errors (103xx)
	ErrUserNotFound = New(10301, KindNotFound, "user not found")
	ErrConvNotFound = New(10302, KindNotFound, "conversation not found")
)
