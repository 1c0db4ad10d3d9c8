package model

import (
	"errors"
	"fmt"
)

// ErrKind is the taxonomy of error kinds the core exposes.
type ErrKind string

const (
	ErrInvalidRequest     ErrKind = "invalid-request"
	ErrTxnNotFound        ErrKind = "txn-not-found"
	ErrTxnExpired         ErrKind = "txn-expired"
	ErrTxnAlreadyComplete ErrKind = "txn-already-committed"
	ErrKeyNotFound        ErrKind = "key-not-found"
	ErrVersionNotFound    ErrKind = "version-not-found"
	ErrStorage            ErrKind = "storage-error"
	ErrInternal           ErrKind = "internal-error"
)

// Error wraps an error kind and an optional underlying cause. It is
// the only error type the core returns, so callers can switch on Kind
// via errors.As instead of string-matching messages.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error with no wrapped cause.
func NewError(op string, kind ErrKind) *Error {
	return &Error{Op: op, Kind: kind}
}

// WrapError builds an *Error wrapping a lower-level cause.
func WrapError(op string, kind ErrKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the ErrKind from an error, if it is (or wraps) an
// *Error. Returns ("", false) otherwise.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
