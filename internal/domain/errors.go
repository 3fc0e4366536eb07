package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies ledger errors for callers.
type Kind string

const (
	KindAlreadyExists      Kind = "ALREADY_EXISTS"
	KindNotFound           Kind = "NOT_FOUND"
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindFailedPrecondition Kind = "FAILED_PRECONDITION"
	KindConflictRetryable  Kind = "CONFLICT_RETRYABLE"
	KindInternal           Kind = "INTERNAL"
)

// Metadata describes how a kind surfaces over HTTP.
type Metadata struct {
	HTTPStatus    int
	Retryable     bool
	PublicMessage string
}

var metadataByKind = map[Kind]Metadata{
	KindAlreadyExists:      {HTTPStatus: http.StatusConflict, PublicMessage: "certificate already exists"},
	KindNotFound:           {HTTPStatus: http.StatusNotFound, PublicMessage: "certificate not found"},
	KindInvalidArgument:    {HTTPStatus: http.StatusBadRequest, PublicMessage: "invalid argument"},
	KindFailedPrecondition: {HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed"},
	KindConflictRetryable:  {HTTPStatus: http.StatusConflict, Retryable: true, PublicMessage: "concurrent update, resubmit"},
	KindInternal:           {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error"},
}

// MetadataFor returns the metadata of kind, falling back to KindInternal.
func MetadataFor(kind Kind) Metadata {
	if meta, ok := metadataByKind[kind]; ok {
		return meta
	}
	return metadataByKind[KindInternal]
}

// Error is a classified ledger error.
type Error struct {
	Kind    Kind
	Message string
	// Details carries per-field messages for validation failures.
	Details map[string]string
	cause   error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrAlreadyExists      = &Error{Kind: KindAlreadyExists}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrInvalidArgument    = &Error{Kind: KindInvalidArgument}
	ErrFailedPrecondition = &Error{Kind: KindFailedPrecondition}
	ErrConflictRetryable  = &Error{Kind: KindConflictRetryable}
	ErrInternal           = &Error{Kind: KindInternal}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, cause: err}
}

// WithDetails attaches per-field messages and returns e.
func (e *Error) WithDetails(details map[string]string) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = MetadataFor(e.Kind).PublicMessage
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.cause == nil && t.Details == nil && t.Kind == e.Kind
}

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return nil
}

// KindOf classifies any error; unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return KindInternal
}
