// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/relay/network"
)

const (
	opRequest      = "request"
	opResponse     = "response"
	opError        = "error"
	opGossip       = "gossip"
	opConnected    = "connected"
	opDisconnected = "disconnected"

	leaveTimeout = 5 * time.Second
)

var (
	ErrPeerNotConnected = errors.New("peer not connected")

	_ network.Sender = (*Transport)(nil)
)

type TransportConfig struct {
	// Prefix of the channels and keys shared by the relayers
	Prefix string
	// NodeID this relayer is reachable at
	NodeID ids.NodeID
	// Concurrency bounds the inbound requests and gossip handled at once
	Concurrency int
}

// frame is a relay protocol frame as published on a relayer's channel
type frame struct {
	Op        string     `json:"op"`
	From      ids.NodeID `json:"from"`
	RequestID uint32     `json:"requestID,omitempty"`
	Deadline  time.Time  `json:"deadline,omitempty"`
	Payload   []byte     `json:"payload,omitempty"`
	Code      int32      `json:"code,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Transport carries relay protocol frames between relayers sharing a Redis
// server. Every relayer subscribes to its own channel, announces itself on a
// presence channel and is listed in a peer set.
type Transport struct {
	client redis.UniversalClient
	log    log.Logger
	config TransportConfig
	ready  chan struct{}
}

func NewTransport(client redis.UniversalClient, log log.Logger, config TransportConfig) *Transport {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Transport{
		client: client,
		log:    log,
		config: config,
		ready:  make(chan struct{}),
	}
}

// Ready is closed once Run has subscribed and reported the known peers
func (t *Transport) Ready() <-chan struct{} {
	return t.ready
}

func (t *Transport) SendRequest(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, request []byte) error {
	return t.send(ctx, nodeID, frame{
		Op:        opRequest,
		RequestID: requestID,
		Deadline:  deadline,
		Payload:   request,
	})
}

func (t *Transport) SendResponse(ctx context.Context, nodeID ids.NodeID, requestID uint32, response []byte) error {
	return t.send(ctx, nodeID, frame{
		Op:        opResponse,
		RequestID: requestID,
		Payload:   response,
	})
}

func (t *Transport) SendError(ctx context.Context, nodeID ids.NodeID, requestID uint32, appErr *network.Error) error {
	return t.send(ctx, nodeID, frame{
		Op:        opError,
		RequestID: requestID,
		Code:      appErr.Code,
		Message:   appErr.Message,
	})
}

// SendGossip sends [gossip] to config.NodeIDs and to config.Peers relayers
// sampled from the peer set. Relayers that are gone are skipped.
func (t *Transport) SendGossip(ctx context.Context, config network.SendConfig, gossip []byte) error {
	nodeIDs := config.NodeIDs.List()
	if config.Peers > 0 {
		// Sample one extra in case this relayer is picked
		sampled, err := t.client.SRandMemberN(ctx, t.peersKey(), int64(config.Peers+1)).Result()
		if err != nil {
			return fmt.Errorf("sample peers: %w", err)
		}
		picked := 0
		for _, s := range sampled {
			nodeID, err := ids.NodeIDFromString(s)
			if err != nil || nodeID == t.config.NodeID || config.NodeIDs.Contains(nodeID) {
				continue
			}
			if picked == config.Peers {
				break
			}
			nodeIDs = append(nodeIDs, nodeID)
			picked++
		}
	}

	for _, nodeID := range nodeIDs {
		err := t.send(ctx, nodeID, frame{
			Op:      opGossip,
			Payload: gossip,
		})
		if err != nil && !errors.Is(err, ErrPeerNotConnected) {
			return err
		}
	}
	return nil
}

// Run feeds the frames addressed to this relayer to [inbound] until [ctx] is
// cancelled, then leaves the peer set.
func (t *Transport) Run(ctx context.Context, inbound network.Inbound) error {
	sub := t.client.Subscribe(ctx, t.channel(t.config.NodeID), t.presenceChannel())
	defer sub.Close()

	// Wait for the subscription to be confirmed so no frame is missed
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe: %w", err)
	}

	if err := t.join(ctx, inbound); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	close(t.ready)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(t.config.Concurrency)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			t.leave()
			return eg.Wait()
		case msg, ok := <-messages:
			if !ok {
				return eg.Wait()
			}
			t.receive(egCtx, eg, inbound, msg.Payload)
		}
	}
}

func (t *Transport) receive(ctx context.Context, eg *errgroup.Group, inbound network.Inbound, payload string) {
	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		t.log.Debug("dropping malformed frame", log.Err(err))
		return
	}
	if f.From == t.config.NodeID {
		return
	}

	var err error
	switch f.Op {
	case opRequest:
		eg.Go(func() error {
			if err := inbound.Request(ctx, f.From, f.RequestID, f.Deadline, f.Payload); err != nil {
				t.log.Debug("failed to handle request",
					log.Stringer("nodeID", f.From),
					log.Uint32("requestID", f.RequestID),
					log.Err(err),
				)
			}
			return nil
		})
	case opGossip:
		eg.Go(func() error {
			if err := inbound.Gossip(ctx, f.From, f.Payload); err != nil {
				t.log.Debug("failed to handle gossip",
					log.Stringer("nodeID", f.From),
					log.Err(err),
				)
			}
			return nil
		})
	case opResponse:
		err = inbound.Response(ctx, f.From, f.RequestID, f.Payload)
	case opError:
		err = inbound.RequestFailed(ctx, f.From, f.RequestID, &network.Error{
			Code:    f.Code,
			Message: f.Message,
		})
	case opConnected:
		err = inbound.Connected(ctx, f.From)
	case opDisconnected:
		err = inbound.Disconnected(ctx, f.From)
	default:
		t.log.Debug("dropping unknown frame",
			log.Stringer("nodeID", f.From),
			log.String("op", f.Op),
		)
	}
	if err != nil {
		t.log.Debug("failed to handle frame",
			log.Stringer("nodeID", f.From),
			log.String("op", f.Op),
			log.Err(err),
		)
	}
}

// join lists this relayer in the peer set, reports the relayers already
// listed and announces itself to them
func (t *Transport) join(ctx context.Context, inbound network.Inbound) error {
	self := t.config.NodeID.String()
	if err := t.client.SAdd(ctx, t.peersKey(), self).Err(); err != nil {
		return fmt.Errorf("join peers: %w", err)
	}
	members, err := t.client.SMembers(ctx, t.peersKey()).Result()
	if err != nil {
		return fmt.Errorf("list peers: %w", err)
	}
	for _, member := range members {
		nodeID, err := ids.NodeIDFromString(member)
		if err != nil || nodeID == t.config.NodeID {
			continue
		}
		if err := inbound.Connected(ctx, nodeID); err != nil {
			return err
		}
	}
	return t.announce(ctx, opConnected)
}

func (t *Transport) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()

	if err := t.client.SRem(ctx, t.peersKey(), t.config.NodeID.String()).Err(); err != nil {
		t.log.Warn("failed to leave peers", log.Err(err))
	}
	if err := t.announce(ctx, opDisconnected); err != nil {
		t.log.Warn("failed to announce departure", log.Err(err))
	}
}

func (t *Transport) announce(ctx context.Context, op string) error {
	frameBytes, err := json.Marshal(frame{
		Op:   op,
		From: t.config.NodeID,
	})
	if err != nil {
		return err
	}
	return t.client.Publish(ctx, t.presenceChannel(), frameBytes).Err()
}

func (t *Transport) send(ctx context.Context, nodeID ids.NodeID, f frame) error {
	f.From = t.config.NodeID
	frameBytes, err := json.Marshal(f)
	if err != nil {
		return err
	}
	receivers, err := t.client.Publish(ctx, t.channel(nodeID), frameBytes).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", nodeID, err)
	}
	if receivers == 0 {
		return fmt.Errorf("%w: %s", ErrPeerNotConnected, nodeID)
	}
	return nil
}

func (t *Transport) channel(nodeID ids.NodeID) string {
	return t.config.Prefix + nodeID.String()
}

func (t *Transport) presenceChannel() string {
	return t.config.Prefix + "presence"
}

func (t *Transport) peersKey() string {
	return t.config.Prefix + "peers"
}
