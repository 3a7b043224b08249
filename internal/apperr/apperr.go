// Package apperr classifies every failure the service reports. Backend and
// gorm errors are re-mapped into this taxonomy at the repository and auth
// boundaries so raw driver errors never reach the transport layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindPrecondition
	KindAuth
	KindNetwork
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindPrecondition:
		return "precondition"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg, Err: err}
}

// KindOf reports the taxonomy kind of err, or KindUnknown for errors that
// were never classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the machine code of a classified error, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

func Validation(code, msg string) *Error   { return New(KindValidation, code, msg) }
func Conflict(code, msg string) *Error     { return New(KindConflict, code, msg) }
func Precondition(code, msg string) *Error { return New(KindPrecondition, code, msg) }
func Auth(code, msg string) *Error         { return New(KindAuth, code, msg) }
func NotFound(code, msg string) *Error     { return New(KindNotFound, code, msg) }

func Network(code, msg string, err error) *Error {
	return Wrap(KindNetwork, code, msg, err)
}
