// Package sceerr implements the error taxonomy of the StateChain Entity
// protocol: a small set of conceptual error kinds that every RPC maps
// onto a JSON envelope of {code, kind, message}.
package sceerr

import (
	"errors"
	"fmt"
)

// Kind names one of the conceptual error categories. Handlers use Kind
// (not Code) to decide retry behavior.
type Kind string

const (
	KindAuth     Kind = "AuthError"
	KindNotFound Kind = "NotFound"
	KindConflict Kind = "Conflict"
	KindProtocol Kind = "ProtocolError"
	KindStore    Kind = "StoreError"
	KindPolicy   Kind = "PolicyError"
	KindBatchExp Kind = "BatchExpired"
)

// defaultCode is the HTTP status class associated with each Kind.
var defaultCode = map[Kind]int{
	KindAuth:     401,
	KindNotFound: 404,
	KindConflict: 409,
	KindProtocol: 422,
	KindStore:    500,
	KindPolicy:   400,
	KindBatchExp: 409,
}

// Error is the concrete error type surfaced by every package in this
// module. It wraps an optional underlying cause for errors.Is/As.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: defaultCode[kind], Message: msg, Err: cause}
}

// Auth builds an AuthError: missing or invalid user_id / credentials.
func Auth(msg string) *Error { return newErr(KindAuth, msg, nil) }

// NotFound builds a NotFound error for an absent entity.
func NotFound(msg string, cause error) *Error { return newErr(KindNotFound, msg, cause) }

// Conflict builds a Conflict error: an I2/I4-style invariant violation
// that the client may retry once the condition clears (e.g. lock
// expiry).
func Conflict(msg string) *Error { return newErr(KindConflict, msg, nil) }

// Protocol builds a ProtocolError: a cryptographic invariant failure.
// Never retried — it indicates a protocol breach or a bug.
func Protocol(msg string) *Error { return newErr(KindProtocol, msg, nil) }

// Store builds a StoreError wrapping an underlying storage failure.
// Retryable once with a fresh connection.
func Store(msg string, cause error) *Error { return newErr(KindStore, msg, cause) }

// Policy builds a PolicyError: a fee or amount violation in
// prepare-sign validation.
func Policy(msg string) *Error { return newErr(KindPolicy, msg, nil) }

// BatchExpired builds the error returned when a batch operation is
// attempted after batch_lifetime has elapsed. Triggers the punishment
// path in the caller.
func BatchExpired(msg string) *Error { return newErr(KindBatchExp, msg, nil) }

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
