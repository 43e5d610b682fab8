// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package networktest connects in-memory networks for tests.
package networktest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/relay/network"
)

// Handlers maps protocol identifiers to the handler serving them
type Handlers map[uint64]network.Handler

// NewSelfClient returns a client for a node serving [handler] to itself
func NewSelfClient(t *testing.T, ctx context.Context, nodeID ids.NodeID, handler network.Handler) *network.Client {
	return NewClient(t, ctx, nodeID, handler, nodeID, handler)
}

// NewClient generates a client-server pair and returns the client used to
// communicate with a server with the specified handler
func NewClient(
	t *testing.T,
	ctx context.Context,
	clientNodeID ids.NodeID,
	clientHandler network.Handler,
	serverNodeID ids.NodeID,
	serverHandler network.Handler,
) *network.Client {
	n := NewNetworkWithPeers(
		t,
		ctx,
		clientNodeID,
		Handlers{0: clientHandler},
		map[ids.NodeID]Handlers{
			serverNodeID: {0: serverHandler},
		},
	)
	return n.NewClient(0)
}

// NewNetworkWithPeers connects the network of [clientNodeID] to a set of
// peers and returns it. Requests and gossip sent by the client are delivered
// to the peers asynchronously; responses and errors are delivered back to
// the client.
func NewNetworkWithPeers(
	t *testing.T,
	ctx context.Context,
	clientNodeID ids.NodeID,
	clientHandlers Handlers,
	peers map[ids.NodeID]Handlers,
) *network.Network {
	peers[clientNodeID] = clientHandlers

	peerSenders := make(map[ids.NodeID]*Sender)
	peerNetworks := make(map[ids.NodeID]*network.Network)
	for nodeID := range peers {
		peerSenders[nodeID] = &Sender{T: t}
		n, err := network.NewNetwork(log.NewNoOpLogger(), peerSenders[nodeID], metric.NewRegistry(), "")
		require.NoError(t, err)
		peerNetworks[nodeID] = n
	}

	peerSenders[clientNodeID].SendGossipF = func(ctx context.Context, config network.SendConfig, gossipBytes []byte) error {
		for nodeID := range config.NodeIDs {
			n, ok := peerNetworks[nodeID]
			if !ok {
				continue
			}
			go func() {
				_ = n.Gossip(ctx, clientNodeID, gossipBytes)
			}()
		}
		return nil
	}

	peerSenders[clientNodeID].SendRequestF = func(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, requestBytes []byte) error {
		n, ok := peerNetworks[nodeID]
		if !ok {
			return fmt.Errorf("%s is not connected", nodeID)
		}

		// Send the request asynchronously to avoid deadlock when the server
		// sends the response back to the client
		go func() {
			_ = n.Request(ctx, clientNodeID, requestID, deadline, requestBytes)
		}()
		return nil
	}

	for nodeID := range peers {
		peerSenders[nodeID].SendResponseF = func(ctx context.Context, _ ids.NodeID, requestID uint32, responseBytes []byte) error {
			go func() {
				_ = peerNetworks[clientNodeID].Response(ctx, nodeID, requestID, responseBytes)
			}()
			return nil
		}
		peerSenders[nodeID].SendErrorF = func(ctx context.Context, _ ids.NodeID, requestID uint32, appErr *network.Error) error {
			go func() {
				_ = peerNetworks[clientNodeID].RequestFailed(ctx, nodeID, requestID, appErr)
			}()
			return nil
		}
	}

	for nodeID, handlers := range peers {
		require.NoError(t, peerNetworks[nodeID].Connected(ctx, clientNodeID))
		require.NoError(t, peerNetworks[nodeID].Connected(ctx, nodeID))
		for handlerID, handler := range handlers {
			require.NoError(t, peerNetworks[nodeID].AddHandler(handlerID, handler))
		}
	}

	return peerNetworks[clientNodeID]
}
