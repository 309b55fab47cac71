// Package apperr holds the error taxonomy shared by the lifecycle service,
// its HTTP surface and the session-side controllers.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	// KindInvalidTransition is a status change the transition table forbids.
	// Never retried.
	KindInvalidTransition Kind = "invalid_transition"
	// KindConflict is an employee double-booking or a lost optimistic update.
	// The user retries with different input.
	KindConflict Kind = "conflict"
	// KindValidationFailed covers voucher preview failures and malformed input.
	KindValidationFailed Kind = "validation_failed"
	KindUnauthorized     Kind = "unauthorized"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	// KindDuplicateRequest is a mutation already in flight or already seen.
	KindDuplicateRequest     Kind = "duplicate_request"
	KindTransportUnavailable Kind = "transport_unavailable"
	// KindUnknown means the outcome could not be observed (timeout). The
	// transition may still have been committed.
	KindUnknown  Kind = "unknown"
	KindInternal Kind = "internal"
)

var (
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrValidationFailed     = &Error{Kind: KindValidationFailed}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrDuplicateRequest     = &Error{Kind: KindDuplicateRequest}
	ErrTransportUnavailable = &Error{Kind: KindTransportUnavailable}
	ErrUnknown              = &Error{Kind: KindUnknown}
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// works for every conflict regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the human message of the first *Error in err's chain,
// falling back to err.Error().
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

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindConflict, KindDuplicateRequest:
		return http.StatusConflict
	case KindValidationFailed:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTransportUnavailable:
		return http.StatusServiceUnavailable
	case KindUnknown:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// KindFromStatus is used by clients when the response body carries no kind.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusUnprocessableEntity:
		return KindInvalidTransition
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadRequest:
		return KindValidationFailed
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return KindTransportUnavailable
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return KindUnknown
	}
	return KindInternal
}
