package models

import "fmt"

// Kind is the error taxonomy shared across the persistence, shell, and tool layers.
type Kind string

const (
	KindBadRequest    Kind = "BadRequest"
	KindUnknownSession Kind = "UnknownSession"
	KindSessionBusy   Kind = "SessionBusy"
	KindFileNotFound  Kind = "FileNotFound"
	KindInvalidRange  Kind = "InvalidRange"
	KindIoError       Kind = "IoError"
	KindToolError     Kind = "ToolError"
	KindUpstreamError Kind = "UpstreamError"
	KindStorageError  Kind = "StorageError"
)

// Error is a taxonomy-tagged error. Callers use errors.As to recover the Kind
// and decide whether it is recovered locally (tool errors) or surfaced to the
// caller (upstream/storage/validation errors).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a taxonomy error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError tags an existing error with a taxonomy kind.
func WrapError(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == kind
}
