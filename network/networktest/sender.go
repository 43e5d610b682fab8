// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package networktest

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/relay/network"
)

var _ network.Sender = (*Sender)(nil)

// Sender is a test implementation of network.Sender.
// Set function fields to customize behavior, or leave nil for default no-op.
// Set Cant* fields to true to fail on unexpected calls.
type Sender struct {
	T *testing.T

	SendRequestF  func(context.Context, ids.NodeID, uint32, time.Time, []byte) error
	SendResponseF func(context.Context, ids.NodeID, uint32, []byte) error
	SendErrorF    func(context.Context, ids.NodeID, uint32, *network.Error) error
	SendGossipF   func(context.Context, network.SendConfig, []byte) error

	CantSendRequest  bool
	CantSendResponse bool
	CantSendError    bool
	CantSendGossip   bool
}

func (s *Sender) SendRequest(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, request []byte) error {
	if s.SendRequestF != nil {
		return s.SendRequestF(ctx, nodeID, requestID, deadline, request)
	}
	if s.CantSendRequest && s.T != nil {
		s.T.Fatal("unexpected SendRequest")
	}
	return nil
}

func (s *Sender) SendResponse(ctx context.Context, nodeID ids.NodeID, requestID uint32, response []byte) error {
	if s.SendResponseF != nil {
		return s.SendResponseF(ctx, nodeID, requestID, response)
	}
	if s.CantSendResponse && s.T != nil {
		s.T.Fatal("unexpected SendResponse")
	}
	return nil
}

func (s *Sender) SendError(ctx context.Context, nodeID ids.NodeID, requestID uint32, appErr *network.Error) error {
	if s.SendErrorF != nil {
		return s.SendErrorF(ctx, nodeID, requestID, appErr)
	}
	if s.CantSendError && s.T != nil {
		s.T.Fatal("unexpected SendError")
	}
	return nil
}

func (s *Sender) SendGossip(ctx context.Context, config network.SendConfig, gossip []byte) error {
	if s.SendGossipF != nil {
		return s.SendGossipF(ctx, config, gossip)
	}
	if s.CantSendGossip && s.T != nil {
		s.T.Fatal("unexpected SendGossip")
	}
	return nil
}
