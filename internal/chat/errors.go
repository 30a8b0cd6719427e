package chat

import (
	"database/sql"
	"errors"
	"fmt"
)

type Kind int

const (
	// KindNotFound means a room, participant or notification is absent.
	KindNotFound Kind = iota
	// KindForbidden means the sender is not a participant of the room.
	KindForbidden
	// KindValidation means the input is malformed: empty name or content,
	// bad identifier.
	KindValidation
	// KindConflict is a direct-room creation race. It is resolved internally
	// and only surfaces when compensation itself fails.
	KindConflict
	// KindTransient means the store was unavailable and the call is safe to
	// retry.
	KindTransient
	// KindFatal is an invariant violation detected post-write. It indicates
	// a bug, never normal operation.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewNotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NewForbiddenError(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewConflictError(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: err}
}

func NewTransientError(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

func NewFatalError(msg string, err error) *Error {
	return &Error{Kind: KindFatal, Message: msg, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindTransient since an
// unclassified store failure must stay retryable for the caller.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}

	return KindTransient
}

func IsKind(err error, kind Kind) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.Kind == kind
}

// storeError classifies a raw repository error: missing rows become NotFound,
// everything else is assumed to be store unavailability.
func storeError(msg string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return NewNotFoundError(msg)
	}

	return NewTransientError(msg, err)
}
