// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

// DefaultRequestTimeout bounds requests made with a context that has no
// deadline
const DefaultRequestTimeout = 10 * time.Second

var (
	ErrRequestPending = errors.New("request pending")
	ErrNoPeers        = errors.New("no peers")

	_ NodeSampler = (*PeerSampler)(nil)
)

// ResponseCallback is called once with the answer to a request issued by
// Client. [err] is the *Error the peer answered with, if any.
type ResponseCallback func(
	ctx context.Context,
	nodeID ids.NodeID,
	responseBytes []byte,
	err error,
)

// NodeSampler picks the relayers Client.RequestAny sends to
type NodeSampler interface {
	Sample(ctx context.Context, limit int) []ids.NodeID
}

// PeerSampler samples connected peers
type PeerSampler struct {
	Peers *Peers
}

func (p PeerSampler) Sample(_ context.Context, limit int) []ids.NodeID {
	return p.Peers.Sample(limit)
}

// ClientOption configures Client
type ClientOption func(client *Client)

// WithNodeSampler makes Client.RequestAny pick from [sampler] instead of the
// connected peers
func WithNodeSampler(sampler NodeSampler) ClientOption {
	return func(client *Client) {
		client.sampler = sampler
	}
}

// Client issues requests and gossip for a single relay protocol
type Client struct {
	handlerID string
	prefix    []byte
	router    *router
	sender    Sender
	sampler   NodeSampler
}

// RequestAny sends [requestBytes] to a relayer picked by the client's
// NodeSampler. See Request.
func (c *Client) RequestAny(
	ctx context.Context,
	requestBytes []byte,
	onResponse ResponseCallback,
) error {
	sampled := c.sampler.Sample(ctx, 1)
	if len(sampled) != 1 {
		return ErrNoPeers
	}
	return c.Request(ctx, sampled[0], requestBytes, onResponse)
}

// Request sends [requestBytes] to [nodeID]. [onResponse] is invoked with the
// response or the error the relayer answers with. The request expires at the
// deadline of [ctx], or after DefaultRequestTimeout if it has none.
func (c *Client) Request(
	ctx context.Context,
	nodeID ids.NodeID,
	requestBytes []byte,
	onResponse ResponseCallback,
) error {
	_, err := c.request(ctx, nodeID, requestBytes, onResponse)
	return err
}

// Call sends [requestBytes] to [nodeID] and waits for the answer. An answer
// arriving after [ctx] is done is dropped.
func (c *Client) Call(ctx context.Context, nodeID ids.NodeID, requestBytes []byte) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}

	type answer struct {
		response []byte
		err      error
	}
	done := make(chan answer, 1)
	requestID, err := c.request(ctx, nodeID, requestBytes, func(_ context.Context, _ ids.NodeID, responseBytes []byte, err error) {
		done <- answer{
			response: responseBytes,
			err:      err,
		}
	})
	if err != nil {
		return nil, err
	}

	select {
	case a := <-done:
		return a.response, a.err
	case <-ctx.Done():
		c.router.clearRequest(requestID)
		return nil, ctx.Err()
	}
}

func (c *Client) request(
	ctx context.Context,
	nodeID ids.NodeID,
	requestBytes []byte,
	onResponse ResponseCallback,
) (uint32, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultRequestTimeout)
	}
	// The pending request is only recorded once the send succeeds, so the
	// send itself must not be abandoned halfway.
	ctxWithoutCancel := context.WithoutCancel(ctx)
	requestBytes = PrefixMessage(c.prefix, requestBytes)

	c.router.lock.Lock()
	defer c.router.lock.Unlock()

	requestID := c.router.requestID
	if _, ok := c.router.pendingRequests[requestID]; ok {
		return 0, fmt.Errorf(
			"failed to issue request with request id %d: %w",
			requestID,
			ErrRequestPending,
		)
	}

	if err := c.sender.SendRequest(ctxWithoutCancel, nodeID, requestID, deadline, requestBytes); err != nil {
		c.router.log.Debug("failed to send request",
			log.Stringer("nodeID", nodeID),
			log.Uint32("requestID", requestID),
			log.UserString("handlerID", c.handlerID),
			log.Err(err),
		)
		return 0, err
	}

	c.router.pendingRequests[requestID] = pendingRequest{
		handlerID: c.handlerID,
		callback:  onResponse,
	}
	c.router.requestID += 2
	return requestID, nil
}

// Gossip sends [gossipBytes] to the relayers selected by [config]
func (c *Client) Gossip(
	ctx context.Context,
	config SendConfig,
	gossipBytes []byte,
) error {
	return c.sender.SendGossip(
		context.WithoutCancel(ctx),
		config,
		PrefixMessage(c.prefix, gossipBytes),
	)
}

// PrefixMessage prefixes [msg] with a protocol prefix.
//
// Responses are not prefixed: they are matched to their protocol by request
// ID.
func PrefixMessage(prefix, msg []byte) []byte {
	messageBytes := make([]byte, len(prefix)+len(msg))
	copy(messageBytes, prefix)
	copy(messageBytes[len(prefix):], msg)
	return messageBytes
}
