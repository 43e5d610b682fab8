// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var _ Inbound = (*Network)(nil)

// SendConfig selects the relayers a gossip message is sent to
type SendConfig struct {
	// NodeIDs are always sent the message
	NodeIDs set.Set[ids.NodeID]

	// Peers is the number of additional connected relayers to sample
	Peers int
}

// Sender delivers relay protocol frames to other relayers. Sends must not
// wait for the remote relayer to handle the frame.
type Sender interface {
	// SendRequest sends [request] to [nodeID], which is expected to answer
	// [requestID] with a response or an error before [deadline].
	SendRequest(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, request []byte) error

	// SendResponse answers [requestID] with [response]
	SendResponse(ctx context.Context, nodeID ids.NodeID, requestID uint32, response []byte) error

	// SendError answers [requestID] with [appErr]
	SendError(ctx context.Context, nodeID ids.NodeID, requestID uint32, appErr *Error) error

	// SendGossip sends [gossip] to the relayers selected by [config]
	SendGossip(ctx context.Context, config SendConfig, gossip []byte) error
}

// Inbound receives the frames and peer changes reported by a transport
type Inbound interface {
	Request(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, request []byte) error
	Response(ctx context.Context, nodeID ids.NodeID, requestID uint32, response []byte) error
	RequestFailed(ctx context.Context, nodeID ids.NodeID, requestID uint32, appErr *Error) error
	Gossip(ctx context.Context, nodeID ids.NodeID, gossip []byte) error
	Connected(ctx context.Context, nodeID ids.NodeID) error
	Disconnected(ctx context.Context, nodeID ids.NodeID) error
}
