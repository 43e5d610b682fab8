// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"fmt"
)

// Error is a relay failure surfaced verbatim to the submitter of a message or
// a registry update. Every call that returns an *Error has committed nothing.
type Error struct {
	Code    int32
	Message string
	// Err is the underlying cause, if any. Destination failures are carried
	// here so callers can inspect what the destination reported.
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("relay error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is a relay error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// wrap returns a copy of [e] carrying [cause].
func (e *Error) wrap(cause error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     cause,
	}
}

var (
	// ErrInvalidProof is returned when the proof verifier rejects a message
	ErrInvalidProof = &Error{
		Code:    1,
		Message: "invalid bridge proof",
	}
	// ErrReplay is returned when the message identifier was already executed
	ErrReplay = &Error{
		Code:    2,
		Message: "message already processed (replay)",
	}
	// ErrMalformed is returned when the message is shorter than the 32 byte
	// destination prefix
	ErrMalformed = &Error{
		Code:    3,
		Message: "malformed message",
	}
	// ErrUnauthorized is returned when a privileged call is made by an
	// identity other than the stored authority
	ErrUnauthorized = &Error{
		Code:    4,
		Message: "unauthorized",
	}
	// ErrDispatchFailed is returned when the destination rejected the payload
	// or could not be invoked
	ErrDispatchFailed = &Error{
		Code:    5,
		Message: "dispatch failed",
	}
	// ErrNotInitialized is returned when the adapter state was never created
	ErrNotInitialized = &Error{
		Code:    6,
		Message: "adapter not initialized",
	}
	// ErrStaleVersion is returned when a registry update was authorized
	// against a configuration version that is no longer current
	ErrStaleVersion = &Error{
		Code:    7,
		Message: "stale configuration version",
	}
)

// Code returns the relay error code carried by [err], or 0 if [err] is not a
// relay error.
func Code(err error) int32 {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Code
	}
	return 0
}
