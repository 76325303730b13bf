package bridge

import (
	"errors"
	"fmt"
)

// Code classifies a bridge operation failure.
type Code int

const (
	// CodeValidation covers malformed input: bad rate/encoding/layout
	// combinations, invalid UTF-8, oversized metadata. Rejected before any
	// state mutation.
	CodeValidation Code = iota

	// CodeAlreadyAttached means a session already exists for the call ID.
	CodeAlreadyAttached

	// CodeNoAttachment means no session exists for the call ID.
	CodeNoAttachment

	// CodePreconditionNotMet means the call leg is not yet answered.
	CodePreconditionNotMet

	// CodeSinkUnreachable means the sink connection could not be
	// established at start time. No session is created.
	CodeSinkUnreachable
)

// String returns the short name of the code.
func (c Code) String() string {
	switch c {
	case CodeValidation:
		return "validation"
	case CodeAlreadyAttached:
		return "already_attached"
	case CodeNoAttachment:
		return "no_attachment"
	case CodePreconditionNotMet:
		return "precondition_not_met"
	case CodeSinkUnreachable:
		return "sink_unreachable"
	default:
		return "unknown"
	}
}

// Error is a classified bridge operation failure. Every failure surfaced by
// [Bridge] operations is of this type; callers branch on Code, humans read
// the wrapped detail.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// errf builds an [*Error] with a formatted detail message.
func errf(code Code, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the [Code] from err. The second return value reports
// whether err (or anything it wraps) is a bridge [*Error].
func CodeOf(err error) (Code, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Code, true
	}
	return 0, false
}
