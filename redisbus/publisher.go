// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redisbus

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/luxfi/relay"
)

var _ relay.Emitter = (*Publisher)(nil)

// Publisher publishes execution events as JSON to a Redis channel
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

func NewPublisher(client redis.UniversalClient, channel string) *Publisher {
	return &Publisher{
		client:  client,
		channel: channel,
	}
}

func (p *Publisher) Emit(ctx context.Context, event relay.ExecutionEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, eventBytes).Err()
}
