// Package apperror defines the closed set of error kinds that cross
// component boundaries in imagegrep, so the HTTP façade can map them to
// status codes without string-matching messages.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds surfaced to callers of the core.
type Kind string

const (
	KindNotReady       Kind = "not-ready"
	KindInvalidInput   Kind = "invalid-input"
	KindAuthFailed     Kind = "auth-failed"
	KindMissingRemote  Kind = "missing-remote-file"
	KindIOFailed       Kind = "io-failed"
	KindDecryptFailed  Kind = "decrypt-failed"
	KindConflict       Kind = "conflict"
	KindNotFound       Kind = "not-found"
)

// Error wraps an underlying cause with a Kind, preserving errors.Is/As
// compatibility via Unwrap.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, apperror.NotReady) match any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs a *Error of the given kind with a message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs a *Error of the given kind wrapping an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// sentinels usable with errors.Is.
var (
	NotReady      = &Error{Kind: KindNotReady}
	InvalidInput  = &Error{Kind: KindInvalidInput}
	AuthFailed    = &Error{Kind: KindAuthFailed}
	MissingRemote = &Error{Kind: KindMissingRemote}
	IOFailed      = &Error{Kind: KindIOFailed}
	DecryptFailed = &Error{Kind: KindDecryptFailed}
	Conflict      = &Error{Kind: KindConflict}
	NotFound      = &Error{Kind: KindNotFound}
)

// KindOf extracts the Kind of err, if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
