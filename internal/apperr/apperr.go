// Package apperr implements the error taxonomy used across the memory
// engine: BadRequest, NotFound, Conflict, Upstream, and Internal. HTTP
// handlers map these onto status codes; everywhere else callers use
// errors.Is against the exported sentinels.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP status mapping and logging.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindConflict
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind for taxonomy-based handling.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, apperr.NotFound) work against a bare sentinel
// for the common "what kind of error is this" check.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons; callers compare kinds, not messages.
var (
	BadRequest = &Error{Kind: KindBadRequest, Message: "bad request"}
	NotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	Conflict   = &Error{Kind: KindConflict, Message: "conflict"}
	Upstream   = &Error{Kind: KindUpstream, Message: "upstream failure"}
	Internal   = &Error{Kind: KindInternal, Message: "internal error"}
)

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NewBadRequest builds a BadRequest error with a formatted message.
func NewBadRequest(format string, args ...any) *Error {
	return newf(KindBadRequest, nil, format, args...)
}

// NewNotFound builds a NotFound error with a formatted message.
func NewNotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

// NewConflict builds a Conflict error with a formatted message.
func NewConflict(format string, args ...any) *Error {
	return newf(KindConflict, nil, format, args...)
}

// WrapUpstream tags a provider/fetch failure as Upstream.
func WrapUpstream(cause error, format string, args ...any) *Error {
	return newf(KindUpstream, cause, format, args...)
}

// WrapInternal tags a storage/IO failure as Internal.
func WrapInternal(cause error, format string, args ...any) *Error {
	return newf(KindInternal, cause, format, args...)
}

// KindOf extracts the Kind of err, defaulting to KindInternal for errors
// that never went through this package (e.g. raw driver errors).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
