package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so transports can map it without string matching.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindParse      Kind = "parse"
	KindPermission Kind = "permission"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
)

// Error is a typed domain failure.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrParse      = &Error{Kind: KindParse}
	ErrPermission = &Error{Kind: KindPermission}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrValidation = &Error{Kind: KindValidation}
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

func newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error   { return newf(KindNotFound, format, args...) }
func Parse(format string, args ...any) error      { return newf(KindParse, format, args...) }
func Permission(format string, args ...any) error { return newf(KindPermission, format, args...) }
func Conflict(format string, args ...any) error   { return newf(KindConflict, format, args...) }
func Validation(format string, args ...any) error { return newf(KindValidation, format, args...) }

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, msg string) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the user-facing message of a typed error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
