package storage

import (
	"errors"
	"fmt"
)

// Kind classifies storage failures so callers can choose between refreshing,
// re-authenticating and aborting without inspecting messages.
type Kind int

const (
	// KindNotFound: a row or document vanished. Refresh and re-present.
	KindNotFound Kind = iota + 1
	// KindConflict: identity or version mismatch on a row mutation. Refresh before retrying.
	KindConflict
	// KindValidation: a document failed structural or membership checks.
	KindValidation
	// KindPermission: the caller may not perform the operation.
	KindPermission
	// KindSessionExpired: credentials are no longer valid. Re-authenticate.
	KindSessionExpired
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation failed"
	case KindPermission:
		return "permission denied"
	case KindSessionExpired:
		return "session expired"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is matching against an *Error's kind.
var (
	ErrNotFound       = errors.New("quozen: not found")
	ErrConflict       = errors.New("quozen: conflict")
	ErrValidation     = errors.New("quozen: validation failed")
	ErrPermission     = errors.New("quozen: permission denied")
	ErrSessionExpired = errors.New("quozen: session expired")
)

var kindSentinels = map[Kind]error{
	KindNotFound:       ErrNotFound,
	KindConflict:       ErrConflict,
	KindValidation:     ErrValidation,
	KindPermission:     ErrPermission,
	KindSessionExpired: ErrSessionExpired,
}

// Error is a classified storage failure.
// Expected and Actual carry the identity or version the caller assumed and
// what the document held, when the failure is a conflict.
type Error struct {
	Kind     Kind
	Op       string
	Message  string
	Expected string
	Actual   string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg = e.Message
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Expected != "" || e.Actual != "" {
		msg = fmt.Sprintf("%s (expected %q, found %q)", msg, e.Expected, e.Actual)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// NotFound builds a KindNotFound error.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a KindConflict error with the expected and actual identity or version.
func Conflict(op, message, expected, actual string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message, Expected: expected, Actual: actual}
}

// Validation builds a KindValidation error.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Permission builds a KindPermission error.
func Permission(op, format string, args ...any) *Error {
	return &Error{Kind: KindPermission, Op: op, Message: fmt.Sprintf(format, args...)}
}

// SessionExpired wraps a transport authentication failure.
func SessionExpired(op string, err error) *Error {
	return &Error{Kind: KindSessionExpired, Op: op, Err: err}
}

// IsConflict reports whether err is a row conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a missing row or document.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
