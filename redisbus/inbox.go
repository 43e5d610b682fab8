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

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/relay"
	"github.com/luxfi/relay/network"
)

// Processor executes relayed messages
type Processor interface {
	ProcessMessage(ctx context.Context, message []byte, proof []byte, execCtx relay.ExecutionContext) (*relay.ExecutionEvent, error)
}

// DeadLetter records a request the inbox could not execute
type DeadLetter struct {
	// MessageID is empty if the request could not be decoded
	MessageID ids.ID    `json:"messageID"`
	Code      int32     `json:"code"`
	Error     string    `json:"error"`
	Request   []byte    `json:"request"`
	Timestamp time.Time `json:"timestamp"`
}

type InboxConfig struct {
	// Key of the list requests are popped from
	Key string
	// DeadLetterKey of the list failed requests are pushed to
	DeadLetterKey string
	// PollDelay bounds how long a single pop blocks, and so how long Run
	// takes to observe cancellation.
	PollDelay time.Duration
}

// Inbox feeds the requests queued in a Redis list to a Processor, one at a
// time and in order.
type Inbox struct {
	client    redis.UniversalClient
	processor Processor
	log       log.Logger
	config    InboxConfig
}

func NewInbox(client redis.UniversalClient, processor Processor, log log.Logger, config InboxConfig) *Inbox {
	return &Inbox{
		client:    client,
		processor: processor,
		log:       log,
		config:    config,
	}
}

// Submit queues [req] on the inbox at [key]
func Submit(ctx context.Context, client redis.UniversalClient, key string, req *network.ProcessRequest) error {
	requestBytes, err := network.MarshalProcessRequest(req)
	if err != nil {
		return err
	}
	return client.RPush(ctx, key, requestBytes).Err()
}

// Run processes requests until [ctx] is cancelled. It returns an error only
// if Redis fails.
func (i *Inbox) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		result, err := i.client.BLPop(ctx, i.config.PollDelay, i.config.Key).Result()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			return fmt.Errorf("pop %s: %w", i.config.Key, err)
		}

		// BLPOP replies with the key followed by the value
		if err := i.handle(ctx, []byte(result[1])); err != nil {
			return err
		}
	}
}

func (i *Inbox) handle(ctx context.Context, requestBytes []byte) error {
	req, err := network.UnmarshalProcessRequest(requestBytes)
	if err != nil {
		i.log.Warn("dropping malformed request",
			log.Binary("request", requestBytes),
			log.Err(err),
		)
		return i.deadLetter(ctx, DeadLetter{
			Code:    network.ErrMalformedRequest.Code,
			Error:   err.Error(),
			Request: requestBytes,
		})
	}

	event, err := i.processor.ProcessMessage(ctx, req.Message, req.Proof, relay.ExecutionContext{
		Accounts: req.Accounts,
	})
	if err != nil {
		return i.deadLetter(ctx, DeadLetter{
			MessageID: relay.MessageID(req.Message),
			Code:      relay.Code(err),
			Error:     err.Error(),
			Request:   requestBytes,
		})
	}

	i.log.Info("executed message",
		log.Stringer("messageID", event.MessageID),
		log.Stringer("destination", event.Destination),
	)
	return nil
}

func (i *Inbox) deadLetter(ctx context.Context, letter DeadLetter) error {
	letter.Timestamp = time.Now()
	letterBytes, err := json.Marshal(letter)
	if err != nil {
		return err
	}
	if err := i.client.RPush(ctx, i.config.DeadLetterKey, letterBytes).Err(); err != nil {
		return fmt.Errorf("push %s: %w", i.config.DeadLetterKey, err)
	}
	return nil
}

// DeadLetters returns the failed requests recorded at [key]
func DeadLetters(ctx context.Context, client redis.UniversalClient, key string) ([]DeadLetter, error) {
	entries, err := client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	letters := make([]DeadLetter, len(entries))
	for i, entry := range entries {
		if err := json.Unmarshal([]byte(entry), &letters[i]); err != nil {
			return nil, fmt.Errorf("decode dead letter %d: %w", i, err)
		}
	}
	return letters, nil
}

// Requeue resubmits the dead letters at [deadLetterKey] accepted by [retry]
// to the inbox at [key] and removes them from the dead letter list. A nil
// [retry] accepts every letter. Letters whose request cannot be decoded are
// kept. It returns the number of requests resubmitted.
func Requeue(
	ctx context.Context,
	client redis.UniversalClient,
	deadLetterKey string,
	key string,
	retry func(DeadLetter) bool,
) (int, error) {
	entries, err := client.LRange(ctx, deadLetterKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	requeued := 0
	for i, entry := range entries {
		var letter DeadLetter
		if err := json.Unmarshal([]byte(entry), &letter); err != nil {
			return requeued, fmt.Errorf("decode dead letter %d: %w", i, err)
		}
		if retry != nil && !retry(letter) {
			continue
		}
		req, err := network.UnmarshalProcessRequest(letter.Request)
		if err != nil {
			continue
		}
		if err := Submit(ctx, client, key, req); err != nil {
			return requeued, err
		}
		if err := client.LRem(ctx, deadLetterKey, 1, entry).Err(); err != nil {
			return requeued, fmt.Errorf("remove dead letter %d: %w", i, err)
		}
		requeued++
	}
	return requeued, nil
}
