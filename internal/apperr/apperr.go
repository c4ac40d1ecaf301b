// Package apperr defines the error kinds surfaced to callers of the chat core.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is a stable machine-readable error category.
type Kind string

const (
	KindNotAuthorized    Kind = "not_authorized"
	KindValidation       Kind = "validation"
	KindUpstream         Kind = "upstream"
	KindStoreUnavailable Kind = "store_unavailable"
	KindNotFound         Kind = "not_found"
	KindInternal         Kind = "internal"
)

// Error carries a kind, a human-readable message and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, apperr.ErrNotFound) matches any not-found error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

var (
	ErrNotAuthorized    = &Error{Kind: KindNotAuthorized}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrUpstream         = &Error{Kind: KindUpstream}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotAuthorized(message string) *Error {
	return New(KindNotAuthorized, message, nil)
}

func Validation(message string, err error) *Error {
	return New(KindValidation, message, err)
}

func Upstream(message string, err error) *Error {
	return New(KindUpstream, message, err)
}

func StoreUnavailable(message string, err error) *Error {
	return New(KindStoreUnavailable, message, err)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the human-readable message of err, without the cause chain
// for classified errors.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
