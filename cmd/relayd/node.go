// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/relay"
	"github.com/luxfi/relay/redisbus"
	"github.com/luxfi/relay/state"
	"github.com/luxfi/relay/verifier"
	"github.com/luxfi/relay/webhook"
)

// node is a fully wired relay pipeline
type node struct {
	log     log.Logger
	metrics metric.Registry
	store   state.Store
	redis   redis.UniversalClient
	// webhook is nil unless a webhook is configured
	webhook *relay.AsyncEmitter
	adapter *relay.Adapter
}

func newLogger(config relay.Config) log.Logger {
	if config.Quiet {
		return log.NewNoOpLogger()
	}
	return log.Root()
}

func openStore(ctx context.Context, config relay.Config, log log.Logger, registerer metric.Registerer) (state.Store, error) {
	var store state.Store
	switch config.StoreDriver {
	case relay.MemoryStore:
		store = state.NewMemory()
	case relay.SQLiteStore:
		s, err := state.OpenSQLite(config.StorePath)
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.StoreDriver)
	}

	filtered, err := state.NewFiltered(ctx, store, log, registerer, config.Namespace, state.FilterConfig{
		MinTargetElements:              config.SeenFilterElements,
		TargetFalsePositiveProbability: config.SeenFilterFalsePositiveRate,
		ResetFalsePositiveProbability:  config.SeenFilterResetRate,
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return filtered, nil
}

func newVerifier(config relay.Config, log log.Logger, sets verifier.ValidatorSets) (verifier.Verifier, error) {
	multi := verifier.NewMulti()
	for _, name := range config.Schemes {
		scheme, err := verifier.ParseScheme(name)
		if err != nil {
			return nil, err
		}

		var v verifier.Verifier
		switch scheme {
		case verifier.Ed25519Scheme:
			v = verifier.Ed25519{}
		case verifier.Secp256k1Scheme:
			v = verifier.Secp256k1{}
		case verifier.QuorumScheme:
			quorum, err := verifier.NewQuorum(log, sets, config.QuorumNumerator, config.QuorumDenominator)
			if err != nil {
				return nil, err
			}
			v = quorum
		}
		if err := multi.AddScheme(scheme, v); err != nil {
			return nil, err
		}
	}

	if config.VerificationCacheSize <= 0 {
		return multi, nil
	}
	return verifier.NewCached(multi, config.VerificationCacheSize)
}

// newWebhook returns the configured webhook delivered from a background
// worker, or nil if no webhook is configured
func newWebhook(config relay.Config, log log.Logger) (*relay.AsyncEmitter, error) {
	if config.WebhookURL == "" {
		return nil, nil
	}
	webhookConfig := webhook.DefaultConfig(config.WebhookURL)
	webhookConfig.Timeout = config.WebhookTimeout
	notifier, err := webhook.New(webhookConfig)
	if err != nil {
		return nil, err
	}
	return relay.NewAsyncEmitter(notifier, log, config.WebhookQueueSize, webhookConfig.MaxDuration()), nil
}

func (n *node) emitter(config relay.Config) relay.Emitter {
	emitters := relay.MultiEmitter{
		redisbus.NewPublisher(n.redis, config.EventsChannel),
	}
	if n.webhook != nil {
		emitters = append(emitters, n.webhook)
	}
	return emitters
}

// newRouter delivers every payload to the Redis stream named by its
// destination, throttled per destination when configured.
func newRouter(config relay.Config, log log.Logger, client redis.UniversalClient, registerer metric.Registerer) (*relay.Router, error) {
	router, err := relay.NewRouter(log, registerer, config.Namespace)
	if err != nil {
		return nil, err
	}

	var destination relay.Destination = redisbus.NewStreamDestination(client, config.StreamPrefix)
	if config.ThrottleLimit > 0 {
		destination = relay.NewThrottledDestination(
			destination,
			relay.NewThrottler[ids.ID](config.ThrottlePeriod, config.ThrottleLimit),
			log,
		)
	}
	router.SetFallback(destination)
	return router, nil
}

// newNode wires a relay pipeline whose metrics are registered on a registry
// owned by the node
func newNode(ctx context.Context, config relay.Config) (*node, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(config)
	registry := metric.NewRegistry()

	store, err := openStore(ctx, config, logger, registry)
	if err != nil {
		return nil, err
	}

	client, err := redisbus.NewClient(config.RedisURL)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	n := &node{
		log:     logger,
		metrics: registry,
		store:   store,
		redis:   client,
	}
	v, err := newVerifier(config, logger, redisbus.NewValidatorSets(client, config.ValidatorSetPrefix))
	if err != nil {
		return nil, errors.Join(err, n.Close())
	}
	n.webhook, err = newWebhook(config, logger)
	if err != nil {
		return nil, errors.Join(err, n.Close())
	}
	router, err := newRouter(config, logger, client, registry)
	if err != nil {
		return nil, errors.Join(err, n.Close())
	}

	n.adapter, err = relay.NewAdapter(logger, store, v, router, n.emitter(config), registry, config.Namespace)
	if err != nil {
		return nil, errors.Join(err, n.Close())
	}
	return n, nil
}

// Close delivers the queued webhook events and releases the store and Redis
func (n *node) Close() error {
	if n.webhook != nil {
		n.webhook.Close()
	}
	return errors.Join(n.redis.Close(), n.store.Close())
}
