// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"errors"
	"fmt"

	"github.com/luxfi/relay"
)

// Error is an application-level error returned to the requesting peer.
//
// Negative codes are transport failures. Positive codes are the relay error
// codes reported by the adapter, so a remote submitter can tell a replay from
// an invalid proof.
type Error struct {
	Code    int32
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("app error %d: %s", e.Code, e.Message)
}

// Is reports whether target is an *Error with the same code, or the relay
// error this error was translated from.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch t := target.(type) {
	case *Error:
		return t != nil && e.Code == t.Code
	case *relay.Error:
		return t != nil && e.Code == t.Code
	default:
		return false
	}
}

var (
	// ErrUnexpected should be used to indicate that a request failed due to a
	// generic error
	ErrUnexpected = &Error{
		Code:    -1,
		Message: "unexpected error",
	}
	// ErrUnregisteredHandler should be used to indicate that a request failed
	// due to it not matching a registered handler
	ErrUnregisteredHandler = &Error{
		Code:    -2,
		Message: "unregistered handler",
	}
	// ErrNotAllowed should be used to indicate that a request failed due to
	// the requesting peer not being an allowed relayer
	ErrNotAllowed = &Error{
		Code:    -3,
		Message: "not an allowed relayer",
	}
	// ErrThrottled should be used to indicate that a request failed due to the
	// requesting peer exceeding a rate limit
	ErrThrottled = &Error{
		Code:    -4,
		Message: "throttled",
	}
	// ErrMalformedRequest should be used to indicate that a request could not
	// be decoded
	ErrMalformedRequest = &Error{
		Code:    -5,
		Message: "malformed request",
	}
)

// toAppError converts an adapter failure into the error sent to the peer.
// Relay errors keep their code; anything else is reported as unexpected.
func toAppError(err error) *Error {
	var relayErr *relay.Error
	if !errors.As(err, &relayErr) {
		return ErrUnexpected
	}
	return &Error{
		Code:    relayErr.Code,
		Message: relayErr.Message,
	}
}
