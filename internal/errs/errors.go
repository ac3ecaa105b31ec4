// Package errs provides the unified error type used across the datastore.
//
// Every subsystem (schema, mapper, expr, command, database, uow) wraps its
// native errors into *errs.Error before returning them to callers. Callers use
// the Is* predicates to handle errors without importing driver-specific
// packages.
//
// Usage:
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In a caller, check the error kind:
//	if errs.IsSchema(err) {
//	    // the entity has no primary key, retrying will not help
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (Postgres, MySQL, SQLite, …) map their native errors to one
// of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows matched
	ErrKindConnectionFailed         // cannot open or reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // command execution error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindSchema                   // entity schema cannot serve the operation (e.g. no primary key)
	ErrKindTranslation              // predicate or order-by uses an unsupported construct
	ErrKindMapping                  // record value cannot be coerced into an entity field
	ErrKindTransaction              // begin, commit or rollback failed
	ErrKindSaveFailed               // unit of work could not persist its pending changes
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindSchema:
		return "schema"
	case ErrKindTranslation:
		return "translation"
	case ErrKindMapping:
		return "mapping"
	case ErrKindTransaction:
		return "transaction"
	case ErrKindSaveFailed:
		return "save_failed"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all datastore subsystems.
type Error struct {
	Kind    ErrKind
	Op      string // operation kind, e.g. "insert", "execute", "open"
	Message string
	Command string // failing command text, empty when no command was involved
	Cause   error  // underlying error, usually from the driver
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("[%s] %s: %s", e.Kind, e.Op, e.Message)
	}
	if e.Command != "" {
		msg += fmt.Sprintf(" (command: %s)", e.Command)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// WithOp sets the operation kind and returns the receiver.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCommand attaches the failing command text and returns the receiver.
func (e *Error) WithCommand(cmd string) *Error {
	e.Command = cmd
	return e
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a command execution failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// IsSchema reports whether err is a schema error such as a missing primary key.
func IsSchema(err error) bool {
	return kindOf(err) == ErrKindSchema
}

// IsTranslation reports whether err came from translating an unsupported expression.
func IsTranslation(err error) bool {
	return kindOf(err) == ErrKindTranslation
}

// IsMapping reports whether err came from materializing an entity from a record.
func IsMapping(err error) bool {
	return kindOf(err) == ErrKindMapping
}

// IsTransaction reports whether err is a begin/commit/rollback failure.
func IsTransaction(err error) bool {
	return kindOf(err) == ErrKindTransaction
}

// IsSaveFailed reports whether err was returned by a failed SaveChanges.
func IsSaveFailed(err error) bool {
	return kindOf(err) == ErrKindSaveFailed
}

// IsDatabase reports whether any error in the chain came from the database
// layer: opening a connection, managing a transaction or running a command.
func IsDatabase(err error) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		switch e.Kind {
		case ErrKindConnectionFailed, ErrKindTimeout, ErrKindQueryFailed,
			ErrKindTransaction, ErrKindPermissionDenied, ErrKindNotFound:
			return true
		}
		err = e.Cause
	}
	return false
}

// KindOf returns the ErrKind of the outermost *Error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
