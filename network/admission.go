// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/luxfi/relay"
)

var (
	_ Handler = (*AdmissionHandler)(nil)

	_ NodeSet = (*StaticNodeSet)(nil)
)

// NodeSet reports whether a node is an allowed relayer
type NodeSet interface {
	Has(ctx context.Context, nodeID ids.NodeID) bool
}

// StaticNodeSet is a fixed NodeSet
type StaticNodeSet set.Set[ids.NodeID]

func (s StaticNodeSet) Has(_ context.Context, nodeID ids.NodeID) bool {
	return set.Set[ids.NodeID](s).Contains(nodeID)
}

// NewAdmissionHandler serves [handler] to the relayers in [allowed], each
// within the per-node budget of [throttler]. A nil [allowed] admits every
// node and a nil [throttler] never throttles.
func NewAdmissionHandler(
	handler Handler,
	allowed NodeSet,
	throttler relay.Throttler[ids.NodeID],
	log log.Logger,
) *AdmissionHandler {
	return &AdmissionHandler{
		handler:   handler,
		allowed:   allowed,
		throttler: throttler,
		log:       log,
	}
}

// AdmissionHandler refuses messages from unknown or throttled relayers.
// Requests are refused with ErrNotAllowed or ErrThrottled; gossip is dropped.
type AdmissionHandler struct {
	handler   Handler
	allowed   NodeSet
	throttler relay.Throttler[ids.NodeID]
	log       log.Logger
}

func (a *AdmissionHandler) Gossip(ctx context.Context, nodeID ids.NodeID, gossipBytes []byte) {
	if err := a.admit(ctx, nodeID); err != nil {
		a.log.Debug("dropping message",
			log.Stringer("nodeID", nodeID),
			log.UserString("reason", err.Message),
		)
		return
	}

	a.handler.Gossip(ctx, nodeID, gossipBytes)
}

func (a *AdmissionHandler) Request(ctx context.Context, nodeID ids.NodeID, deadline time.Time, requestBytes []byte) ([]byte, *Error) {
	if err := a.admit(ctx, nodeID); err != nil {
		return nil, err
	}

	return a.handler.Request(ctx, nodeID, deadline, requestBytes)
}

// admit checks the allow list before the throttler, so that unknown nodes
// never consume a budget
func (a *AdmissionHandler) admit(ctx context.Context, nodeID ids.NodeID) *Error {
	if a.allowed != nil && !a.allowed.Has(ctx, nodeID) {
		return ErrNotAllowed
	}
	if a.throttler != nil && !a.throttler.Handle(nodeID) {
		return ErrThrottled
	}
	return nil
}
