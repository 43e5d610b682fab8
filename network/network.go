// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package network exposes a relay adapter to peers.
//
// Relayers submit messages and signed registry updates as requests, or
// broadcast messages as gossip. Each application protocol is identified by a
// uvarint prefix and served by the Handler registered for it. Frames are
// carried by a Sender; inbound frames are fed to a Network.
package network

import (
	"context"
	"encoding/binary"
	"strconv"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/luxfi/metric"
)

// NewNetwork returns a Network sending through [sender] with its metrics
// registered on [registerer]
func NewNetwork(
	log log.Logger,
	sender Sender,
	registerer metric.Registerer,
	namespace string,
) (*Network, error) {
	m, err := newMetrics(registerer, namespace)
	if err != nil {
		return nil, err
	}

	return &Network{
		Peers: &Peers{
			set: set.NewSampleableSet[ids.NodeID](0),
		},
		log:    log,
		sender: sender,
		router: newRouter(log, sender, m),
	}, nil
}

// Network tracks connected relayers and routes inbound frames to the
// registered protocol handlers
type Network struct {
	Peers *Peers

	log    log.Logger
	sender Sender

	router *router
}

func (n *Network) Request(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, request []byte) error {
	return n.router.Request(ctx, nodeID, requestID, deadline, request)
}

func (n *Network) Response(ctx context.Context, nodeID ids.NodeID, requestID uint32, response []byte) error {
	return n.router.Response(ctx, nodeID, requestID, response)
}

func (n *Network) RequestFailed(ctx context.Context, nodeID ids.NodeID, requestID uint32, appErr *Error) error {
	return n.router.RequestFailed(ctx, nodeID, requestID, appErr)
}

func (n *Network) Gossip(ctx context.Context, nodeID ids.NodeID, msg []byte) error {
	return n.router.Gossip(ctx, nodeID, msg)
}

func (n *Network) Connected(_ context.Context, nodeID ids.NodeID) error {
	n.log.Debug("relayer connected", log.Stringer("nodeID", nodeID))
	n.Peers.add(nodeID)
	return nil
}

func (n *Network) Disconnected(_ context.Context, nodeID ids.NodeID) error {
	n.log.Debug("relayer disconnected", log.Stringer("nodeID", nodeID))
	n.Peers.remove(nodeID)
	return nil
}

// NewClient returns a Client for the protocol registered under [handlerID]
func (n *Network) NewClient(handlerID uint64, options ...ClientOption) *Client {
	client := &Client{
		handlerID: strconv.FormatUint(handlerID, 10),
		prefix:    ProtocolPrefix(handlerID),
		sender:    n.sender,
		router:    n.router,
		sampler: PeerSampler{
			Peers: n.Peers,
		},
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// AddHandler serves [handler] under [handlerID]
func (n *Network) AddHandler(handlerID uint64, handler Handler) error {
	return n.router.addHandler(handlerID, handler)
}

// Peers is the set of connected relayers
type Peers struct {
	lock sync.RWMutex
	set  set.SampleableSet[ids.NodeID]
}

func (p *Peers) add(nodeID ids.NodeID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.set.Add(nodeID)
}

func (p *Peers) remove(nodeID ids.NodeID) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.set.Remove(nodeID)
}

// Has returns true if [nodeID] is connected
func (p *Peers) Has(nodeID ids.NodeID) bool {
	p.lock.RLock()
	defer p.lock.RUnlock()

	return p.set.Contains(nodeID)
}

// Len returns the number of connected relayers
func (p *Peers) Len() int {
	p.lock.RLock()
	defer p.lock.RUnlock()

	return p.set.Len()
}

// Sample returns a pseudo-random sample of up to [limit] connected relayers
func (p *Peers) Sample(limit int) []ids.NodeID {
	p.lock.RLock()
	defer p.lock.RUnlock()

	return p.set.Sample(limit)
}

// ProtocolPrefix is the prefix of requests and gossip for [handlerID]
func ProtocolPrefix(handlerID uint64) []byte {
	return binary.AppendUvarint(nil, handlerID)
}
