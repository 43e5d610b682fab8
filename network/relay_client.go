// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"

	"github.com/luxfi/ids"
)

// RelayClient submits messages and registry updates to a remote adapter and
// waits for the outcome.
type RelayClient struct {
	process  *Client
	registry *Client
}

func NewRelayClient(network *Network, options ...ClientOption) *RelayClient {
	return &RelayClient{
		process:  network.NewClient(ProcessMessageHandlerID, options...),
		registry: network.NewClient(SetRegistryHandlerID, options...),
	}
}

// ProcessMessage submits [req] to [nodeID]. Errors reported by the remote
// adapter are returned as *Error and match the corresponding relay errors
// with errors.Is.
func (c *RelayClient) ProcessMessage(ctx context.Context, nodeID ids.NodeID, req *ProcessRequest) (*ProcessResponse, error) {
	requestBytes, err := MarshalProcessRequest(req)
	if err != nil {
		return nil, err
	}
	responseBytes, err := c.process.Call(ctx, nodeID, requestBytes)
	if err != nil {
		return nil, err
	}
	return UnmarshalProcessResponse(responseBytes)
}

// GossipMessage broadcasts [req] without waiting for an outcome
func (c *RelayClient) GossipMessage(ctx context.Context, config SendConfig, req *ProcessRequest) error {
	requestBytes, err := MarshalProcessRequest(req)
	if err != nil {
		return err
	}
	return c.process.Gossip(ctx, config, requestBytes)
}

// SetRegistry submits a signed registry update to [nodeID]
func (c *RelayClient) SetRegistry(ctx context.Context, nodeID ids.NodeID, req *SetRegistryRequest) error {
	requestBytes, err := MarshalSetRegistryRequest(req)
	if err != nil {
		return err
	}
	_, err = c.registry.Call(ctx, nodeID, requestBytes)
	return err
}
