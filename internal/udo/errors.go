package udo

import (
	"errors"
	"fmt"
)

// Kind classifies an invocation failure.
type Kind string

const (
	KindInputNotFound          Kind = "InputNotFound"
	KindOutputDirectoryMissing Kind = "OutputDirectoryMissing"
	KindUnsupportedFormat      Kind = "UnsupportedFormat"
	KindDecodeFailure          Kind = "DecodeFailure"
	KindOperationNotFound      Kind = "OperationNotFound"
	KindOperationLoadError     Kind = "OperationLoadError"
	KindOperationCrashed       Kind = "OperationCrashed"
	KindInvalidParameters      Kind = "InvalidParameters"
)

// Sentinels matching each kind through errors.Is.
var (
	ErrInputNotFound          = &Error{Kind: KindInputNotFound}
	ErrOutputDirectoryMissing = &Error{Kind: KindOutputDirectoryMissing}
	ErrUnsupportedFormat      = &Error{Kind: KindUnsupportedFormat}
	ErrDecodeFailure          = &Error{Kind: KindDecodeFailure}
	ErrOperationNotFound      = &Error{Kind: KindOperationNotFound}
	ErrOperationLoadError     = &Error{Kind: KindOperationLoadError}
	ErrOperationCrashed       = &Error{Kind: KindOperationCrashed}
	ErrInvalidParameters      = &Error{Kind: KindInvalidParameters}
)

// Error is the structured failure record returned to callers.
type Error struct {
	Kind    Kind
	Op      string // operation name, when known
	Path    string // artifact or manifest path involved, when relevant
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	prefix := string(e.Kind)
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	switch {
	case msg == "" && e.Path == "":
		return prefix
	case e.Path == "":
		return prefix + ": " + msg
	case msg == "":
		return fmt.Sprintf("%s: %s", prefix, e.Path)
	default:
		return fmt.Sprintf("%s: %s: %s", prefix, msg, e.Path)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so the package sentinels match any error of the
// same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Message == "" && t.Err == nil
}

// NewError builds a structured error of the given kind.
func NewError(kind Kind, path string, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a structured error of the given kind around a cause.
func WrapError(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// AsError extracts the structured error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of a structured error, or "" for anything else.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return ""
}

// IsModuleKind reports whether the kind is one a module is expected to report
// itself rather than the dispatcher.
func (k Kind) IsModuleKind() bool {
	switch k {
	case KindInputNotFound, KindOutputDirectoryMissing, KindUnsupportedFormat, KindDecodeFailure:
		return true
	}
	return false
}
