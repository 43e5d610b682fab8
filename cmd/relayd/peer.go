// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"crypto/rand"
	"errors"

	"github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/luxfi/metric"
	"github.com/luxfi/relay"
	"github.com/luxfi/relay/network"
	"github.com/luxfi/relay/redisbus"
)

// newPeerNetwork returns a network reachable as [nodeID], carried over the
// Redis channels under config.PeerPrefix
func newPeerNetwork(
	config relay.Config,
	log log.Logger,
	client redis.UniversalClient,
	registerer metric.Registerer,
	nodeID ids.NodeID,
) (*network.Network, *redisbus.Transport, error) {
	transport := redisbus.NewTransport(client, log, redisbus.TransportConfig{
		Prefix:      config.PeerPrefix,
		NodeID:      nodeID,
		Concurrency: config.PeerConcurrency,
	})
	peers, err := network.NewNetwork(log, transport, registerer, config.Namespace+"_network")
	if err != nil {
		return nil, nil, err
	}
	return peers, transport, nil
}

// newPeerServer exposes the adapter of [n] to the relayers allowed by
// [config]
func newPeerServer(config relay.Config, n *node, nodeID ids.NodeID) (*network.Network, *redisbus.Transport, error) {
	peers, transport, err := newPeerNetwork(config, n.log, n.redis, n.metrics, nodeID)
	if err != nil {
		return nil, nil, err
	}

	allowedIDs, err := config.AllowedRelayerIDs()
	if err != nil {
		return nil, nil, err
	}
	var allowed network.NodeSet
	if len(allowedIDs) > 0 {
		allowed = network.StaticNodeSet(set.Of(allowedIDs...))
	}
	var throttler relay.Throttler[ids.NodeID]
	if config.PeerThrottleLimit > 0 {
		throttler = relay.NewThrottler[ids.NodeID](config.PeerThrottlePeriod, config.PeerThrottleLimit)
	}

	if err := network.RegisterAdapter(peers, n.adapter, allowed, throttler, n.log); err != nil {
		return nil, nil, err
	}
	return peers, transport, nil
}

// withPeerClient runs [fn] against a client of the relayers sharing the Redis
// server of [config]. The client is reachable as config.NodeID, or as a
// random node ID if none is configured.
func withPeerClient(ctx context.Context, config relay.Config, fn func(*network.RelayClient) error) error {
	if err := config.Validate(); err != nil {
		return err
	}
	nodeID, ok, err := config.PeerNodeID()
	if err != nil {
		return err
	}
	if !ok {
		nodeID, err = randomNodeID()
		if err != nil {
			return err
		}
	}

	client, err := redisbus.NewClient(config.RedisURL)
	if err != nil {
		return err
	}
	logger := newLogger(config)
	peers, transport, err := newPeerNetwork(config, logger, client, metric.NewRegistry(), nodeID)
	if err != nil {
		return errors.Join(err, client.Close())
	}

	runCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error {
		return transport.Run(egCtx, peers)
	})

	select {
	case <-transport.Ready():
		err = fn(network.NewRelayClient(peers))
	case <-egCtx.Done():
		err = ctx.Err()
	}
	cancel()
	return errors.Join(err, eg.Wait(), client.Close())
}

func randomNodeID() (ids.NodeID, error) {
	var b [ids.ShortIDLen]byte
	if _, err := rand.Read(b[:]); err != nil {
		return ids.EmptyNodeID, err
	}
	return ids.ToNodeID(b[:])
}
