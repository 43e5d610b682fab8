// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"

	"github.com/luxfi/ids"
)

var (
	_ Destination = (*NoOpDestination)(nil)
	_ Destination = (*TestDestination)(nil)
	_ Destination = (DestinationFunc)(nil)
)

// Execution is a payload forwarded to a destination.
type Execution struct {
	// MessageID identifies the relayed message. Destinations that perform
	// external side effects should treat it as an idempotency key.
	MessageID ids.ID
	// Destination is the identifier the message was routed by.
	Destination ids.ID
	// Payload is the message with its destination prefix removed.
	Payload []byte
	// Accounts is the caller-supplied execution context.
	Accounts []ids.ID
}

// Destination is the handler a relayed payload is forwarded to.
type Destination interface {
	// Execute runs the payload. A non-nil error rejects the payload and
	// aborts processing of the message.
	Execute(ctx context.Context, execution Execution) error
}

// DestinationFunc adapts a function to a Destination
type DestinationFunc func(ctx context.Context, execution Execution) error

func (f DestinationFunc) Execute(ctx context.Context, execution Execution) error {
	return f(ctx, execution)
}

// NoOpDestination accepts every payload
type NoOpDestination struct{}

func (NoOpDestination) Execute(context.Context, Execution) error {
	return nil
}

type TestDestination struct {
	ExecuteF func(ctx context.Context, execution Execution) error
}

func (t TestDestination) Execute(ctx context.Context, execution Execution) error {
	if t.ExecuteF == nil {
		return nil
	}

	return t.ExecuteF(ctx, execution)
}
