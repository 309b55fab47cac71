// Package lifecycle defines the order and appointment state machines as
// explicit transition tables. Every mutating call, on the server and in a
// session, is checked against these tables before it is issued.
//
// Apply functions are pure: they take a snapshot by value and return the
// next snapshot. On error the caller's snapshot is untouched.
package lifecycle

import (
	"fmt"
	"strings"

	"lifecycle-service/internal/apperr"
)

// Actor is the role an action belongs to.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorAdmin    Actor = "admin"
)

func invalid(op string, format string, args ...any) error {
	return apperr.New(apperr.KindInvalidTransition, op, fmt.Sprintf(format, args...))
}

func requireReason(op, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.New(apperr.KindValidationFailed, op, "a reason is required")
	}
	return nil
}
