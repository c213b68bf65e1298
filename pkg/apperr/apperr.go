package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping and caller decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindInvalidArgument
	KindConflict
	KindPrecondition
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition_failed"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "unknown"
	}
}

// Error carries a kind, a caller-facing message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func InvalidArgument(msg string) error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Precondition(msg string) error {
	return &Error{Kind: KindPrecondition, Message: msg}
}

func Upstream(msg string, cause error) error {
	return &Error{Kind: KindUpstream, Message: msg, Err: cause}
}

// KindOf reports the kind of err, or KindUnknown for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool        { return KindOf(err) == KindNotFound }
func IsInvalidArgument(err error) bool { return KindOf(err) == KindInvalidArgument }
func IsConflict(err error) bool        { return KindOf(err) == KindConflict }
func IsPrecondition(err error) bool    { return KindOf(err) == KindPrecondition }
func IsUpstream(err error) bool        { return KindOf(err) == KindUpstream }
