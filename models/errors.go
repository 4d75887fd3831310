package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies ledger failures so callers can render or map them.
type ErrorKind string

const (
	KindValidation       ErrorKind = "VALIDATION"
	KindNotFound         ErrorKind = "NOT_FOUND"
	KindInvalidState     ErrorKind = "INVALID_STATE"
	KindQuoteUnavailable ErrorKind = "QUOTE_UNAVAILABLE"
	KindStorage          ErrorKind = "STORAGE"
)

// Error is the structured error returned by the store, the engine and the aggregator.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	ID      string    `json:"id,omitempty"`
	Codes   []string  `json:"codes,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

// Sentinels for errors.Is. Any *Error with the same Kind matches.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrQuoteUnavailable = &Error{Kind: KindQuoteUnavailable}
	ErrStorage          = &Error{Kind: KindStorage}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewValidationError reports malformed input.
func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports an unknown position id.
func NewNotFoundError(id string) *Error {
	return &Error{Kind: KindNotFound, ID: id, Message: fmt.Sprintf("position %s not found", id)}
}

// NewInvalidStateError reports an operation that is illegal for the record's status.
func NewInvalidStateError(id, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, ID: id, Message: fmt.Sprintf(format, args...)}
}

// NewQuoteUnavailableError reports codes without a resolvable price.
func NewQuoteUnavailableError(codes []string, err error) *Error {
	msg := "quotes unavailable"
	if len(codes) > 0 {
		msg = "no quote for " + strings.Join(codes, ", ")
	}
	return &Error{Kind: KindQuoteUnavailable, Codes: codes, Message: msg, Err: err}
}

// NewStorageError wraps a persistence failure.
func NewStorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
