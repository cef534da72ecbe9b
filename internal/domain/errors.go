package domain

import (
	"errors"
	"fmt"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// Kind classifies failures surfaced to callers.
type Kind string

const (
	KindNotInitialized        Kind = "not_initialized"
	KindInvalidArgument       Kind = "invalid_argument"
	KindAuthenticationFailed  Kind = "authentication_failed"
	KindCredentialExists      Kind = "credential_exists"
	KindBindingFailed         Kind = "binding_failed"
	KindAccountNotInitialized Kind = "account_not_initialized"
	KindSubmissionFailed      Kind = "submission_failed"
	KindTransferFailed        Kind = "transfer_failed"
	KindUnsupportedCurrency   Kind = "unsupported_currency"
	KindTimeout               Kind = "timeout"
)

// Error carries a Kind together with the operation and identifiers it failed on.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same Kind, so the Err* sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotInitialized        = &Error{Kind: KindNotInitialized}
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
	ErrAuthenticationFailed  = &Error{Kind: KindAuthenticationFailed}
	ErrCredentialExists      = &Error{Kind: KindCredentialExists}
	ErrBindingFailed         = &Error{Kind: KindBindingFailed}
	ErrAccountNotInitialized = &Error{Kind: KindAccountNotInitialized}
	ErrSubmissionFailed      = &Error{Kind: KindSubmissionFailed}
	ErrTransferFailed        = &Error{Kind: KindTransferFailed}
	ErrUnsupportedCurrency   = &Error{Kind: KindUnsupportedCurrency}
	ErrTimeout               = &Error{Kind: KindTimeout}
)

// E builds an *Error. Detail is optional context such as an identifier.
func E(kind Kind, op string, err error, detail ...string) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}
	if len(detail) > 0 {
		e.Detail = detail[0]
	}
	return e
}

// KindOf returns the outermost Kind in err's chain, or "" when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
