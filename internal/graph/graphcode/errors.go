// Package graphcode provides the graph engine's unified error taxonomy.
package graphcode

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one of the error kinds from the engine's error taxonomy.
type Code string

const (
	// Input validation.
	CodeInvalidReference Code = "INVALID_REFERENCE"
	CodeBadQuery         Code = "BAD_QUERY"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"

	// Storage.
	CodeStorageIO          Code = "STORAGE_IO"
	CodeSerializationError Code = "SERIALIZATION_ERROR"

	// Transaction.
	CodeTransactionNotFound       Code = "TRANSACTION_NOT_FOUND"
	CodeTransactionAlreadyDone   Code = "TRANSACTION_ALREADY_COMPLETED"
	CodeSavepointNotFound        Code = "SAVEPOINT_NOT_FOUND"
	CodeSavepointAlreadyExists   Code = "SAVEPOINT_ALREADY_EXISTS"
	CodeVersionConflict          Code = "VERSION_CONFLICT"
	CodeIsolationViolation       Code = "ISOLATION_VIOLATION"
	CodeTimeout                  Code = "TIMEOUT"
	CodeDeadlockVictim           Code = "DEADLOCK_VICTIM"

	// Constraint.
	CodeUniquenessViolation Code = "UNIQUENESS_VIOLATION"
	CodeExistenceViolation  Code = "EXISTENCE_VIOLATION"

	// Stream.
	CodeBackpressure Code = "BACKPRESSURE"
	CodeStreamClosed Code = "STREAM_CLOSED"

	// Query execution.
	CodeInvalidExpression Code = "INVALID_EXPRESSION"
	CodeNotImplemented    Code = "NOT_IMPLEMENTED"
)

// Error is a structured error carrying a taxonomy Code, a human message,
// an HTTP status suitable for the thin HTTP adapter, and optional details
// and wrapped cause.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches a key/value detail and returns the error for chaining.
func (e *Error) WithDetails(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string, httpStatus int) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error with an Error.
func Wrap(code Code, message string, httpStatus int, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Input validation constructors.

func InvalidReference(resource, id string) *Error {
	return New(CodeInvalidReference, "referenced entity does not exist", http.StatusBadRequest).
		WithDetails("resource", resource).WithDetails("id", id)
}

func BadQuery(reason string, err error) *Error {
	return Wrap(CodeBadQuery, "query could not be parsed: "+reason, http.StatusBadRequest, err)
}

func InvalidArgument(field, reason string) *Error {
	return New(CodeInvalidArgument, "invalid argument", http.StatusBadRequest).
		WithDetails("field", field).WithDetails("reason", reason)
}

// Storage constructors.

func StorageIO(op string, err error) *Error {
	return Wrap(CodeStorageIO, "storage operation failed", http.StatusInternalServerError, err).
		WithDetails("op", op)
}

func SerializationError(kind string, err error) *Error {
	return Wrap(CodeSerializationError, "serialization failed", http.StatusInternalServerError, err).
		WithDetails("kind", kind)
}

// Transaction constructors.

func TransactionNotFound(txID uint64) *Error {
	return New(CodeTransactionNotFound, "transaction not found", http.StatusConflict).
		WithDetails("tx_id", txID)
}

func TransactionAlreadyCompleted(txID uint64) *Error {
	return New(CodeTransactionAlreadyDone, "transaction already completed", http.StatusConflict).
		WithDetails("tx_id", txID)
}

func SavepointNotFound(name string) *Error {
	return New(CodeSavepointNotFound, "savepoint not found", http.StatusConflict).
		WithDetails("name", name)
}

func SavepointAlreadyExists(name string) *Error {
	return New(CodeSavepointAlreadyExists, "savepoint already exists", http.StatusConflict).
		WithDetails("name", name)
}

// VersionConflict reports an optimistic-concurrency mismatch.
func VersionConflict(expected, actual uint64) *Error {
	return New(CodeVersionConflict, "version conflict", http.StatusConflict).
		WithDetails("expected", expected).WithDetails("actual", actual)
}

func IsolationViolation(level, cause string) *Error {
	return New(CodeIsolationViolation, "isolation validation failed", http.StatusConflict).
		WithDetails("level", level).WithDetails("cause", cause)
}

func Timeout(operation string) *Error {
	return New(CodeTimeout, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func DeadlockVictim(txID uint64) *Error {
	return New(CodeDeadlockVictim, "transaction aborted as deadlock victim", http.StatusConflict).
		WithDetails("tx_id", txID)
}

// Constraint constructors.

func UniquenessViolation(label, property string, value any) *Error {
	return New(CodeUniquenessViolation, "uniqueness constraint violated", http.StatusConflict).
		WithDetails("label", label).WithDetails("property", property).WithDetails("value", value)
}

func ExistenceViolation(label, property string) *Error {
	return New(CodeExistenceViolation, "existence constraint violated", http.StatusConflict).
		WithDetails("label", label).WithDetails("property", property)
}

// Stream constructors.

func Backpressure(stream string) *Error {
	return New(CodeBackpressure, "stream buffer is full", http.StatusServiceUnavailable).
		WithDetails("stream", stream)
}

func StreamClosed(stream string) *Error {
	return New(CodeStreamClosed, "stream is closed", http.StatusGone).
		WithDetails("stream", stream)
}

// Query execution constructors.

// InvalidParameter reports a $name reference with no bound value.
func InvalidParameter(name string) *Error {
	return New(CodeInvalidExpression, "query parameter not bound", http.StatusBadRequest).
		WithDetails("parameter", name)
}

// InvalidExpression reports a malformed or type-mismatched expression
// encountered during evaluation (e.g. an unparsable =~ pattern).
func InvalidExpression(reason string) *Error {
	return New(CodeInvalidExpression, "invalid expression", http.StatusBadRequest).
		WithDetails("reason", reason)
}

// NotImplemented reports a recognized but unsupported Cypher construct.
func NotImplemented(feature string) *Error {
	return New(CodeNotImplemented, "feature not implemented", http.StatusNotImplemented).
		WithDetails("feature", feature)
}

// IsGraphError reports whether err is (or wraps) an *Error.
func IsGraphError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// AsGraphError extracts an *Error from err, if present.
func AsGraphError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// HTTPStatusFor reports the HTTP status an error maps to, defaulting to 500.
func HTTPStatusFor(err error) int {
	if e := AsGraphError(err); e != nil {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
