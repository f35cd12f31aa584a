package services

import (
	"errors"
	"fmt"
)

// Kind is the stable, caller-visible category of a failure.
type Kind string

const (
	KindInvalidAmount          Kind = "invalid_amount"
	KindInvalidRequest         Kind = "invalid_request"
	KindActorNotFound          Kind = "actor_not_found"
	KindTargetNotFound         Kind = "target_not_found"
	KindUserNotFound           Kind = "user_not_found"
	KindUnauthorized           Kind = "unauthorized"
	KindSelfAllocation         Kind = "self_allocation"
	KindInsufficientBalance    Kind = "insufficient_balance"
	KindInsufficientCredits    Kind = "insufficient_credits"
	KindConcurrentModification Kind = "concurrent_modification"
	KindUnavailable            Kind = "service_unavailable"
	KindConflict               Kind = "conflict"
	KindInvalidCredentials     Kind = "invalid_credentials"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind. Self allocation is also an
// authorization failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return e.Kind == KindSelfAllocation && t.Kind == KindUnauthorized
}

var (
	ErrInvalidAmount          = &Error{Kind: KindInvalidAmount}
	ErrInvalidRequest         = &Error{Kind: KindInvalidRequest}
	ErrActorNotFound          = &Error{Kind: KindActorNotFound}
	ErrTargetNotFound         = &Error{Kind: KindTargetNotFound}
	ErrUserNotFound           = &Error{Kind: KindUserNotFound}
	ErrUnauthorized           = &Error{Kind: KindUnauthorized}
	ErrSelfAllocation         = &Error{Kind: KindSelfAllocation}
	ErrInsufficientBalance    = &Error{Kind: KindInsufficientBalance}
	ErrInsufficientCredits    = &Error{Kind: KindInsufficientCredits}
	ErrConcurrentModification = &Error{Kind: KindConcurrentModification}
	ErrUnavailable            = &Error{Kind: KindUnavailable}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrInvalidCredentials     = &Error{Kind: KindInvalidCredentials}
)

func newErr(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

func wrapErr(kind Kind, msg string, err error) *Error { return &Error{Kind: kind, Msg: msg, Err: err} }

// KindOf returns the kind of the first *Error in err's chain, or "" for
// errors that did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Message returns the human-readable part of err without wrapped storage
// details.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		return string(e.Kind)
	}
	return "internal error"
}
