// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redisbus

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/luxfi/ids"
	"github.com/luxfi/relay"
)

// Stream entry fields written by StreamDestination
const (
	MessageIDField = "messageID"
	PayloadField   = "payload"
	AccountsField  = "accounts"
)

var _ relay.Destination = (*StreamDestination)(nil)

// StreamDestination appends each payload to the Redis stream named by its
// destination, where the destination's consumers pick it up. Consumers
// should treat the message ID as an idempotency key.
type StreamDestination struct {
	client redis.UniversalClient
	prefix string
}

func NewStreamDestination(client redis.UniversalClient, prefix string) *StreamDestination {
	return &StreamDestination{
		client: client,
		prefix: prefix,
	}
}

// Stream returns the stream payloads for [destination] are appended to
func (s *StreamDestination) Stream(destination ids.ID) string {
	return s.prefix + destination.String()
}

func (s *StreamDestination) Execute(ctx context.Context, execution relay.Execution) error {
	accounts := make([]string, len(execution.Accounts))
	for i, account := range execution.Accounts {
		accounts[i] = account.String()
	}

	stream := s.Stream(execution.Destination)
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			MessageIDField: execution.MessageID.String(),
			PayloadField:   execution.Payload,
			AccountsField:  strings.Join(accounts, ","),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("append to %s: %w", stream, err)
	}
	return nil
}
