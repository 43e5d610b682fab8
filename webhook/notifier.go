// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package webhook forwards execution events to an HTTP hub.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/luxfi/relay"
)

const (
	// Tool is the hub tool execution events are addressed to
	Tool = "relay.event.notify"
	// ExecutionEvent names the event kind in a notification
	ExecutionEvent = "execution"
)

var (
	_ relay.Emitter = (*Notifier)(nil)

	ErrUnexpectedStatus = errors.New("unexpected status")
	errInvalidURL       = errors.New("webhook url must start with http:// or https://")
)

// Notification is the request body posted to the hub
type Notification struct {
	Tool  string `json:"tool"`
	Input Input  `json:"input"`
}

type Input struct {
	Event   string               `json:"event"`
	Payload relay.ExecutionEvent `json:"payload"`
}

type Config struct {
	URL string
	// Timeout bounds each attempt
	Timeout time.Duration
	// RetryMax is the number of retries after a failed attempt
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

func DefaultConfig(url string) Config {
	return Config{
		URL:          url,
		Timeout:      5 * time.Second,
		RetryMax:     3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,
	}
}

// MaxDuration bounds a single Emit, including every retry
func (c Config) MaxDuration() time.Duration {
	return time.Duration(c.RetryMax+1)*c.Timeout + time.Duration(c.RetryMax)*c.RetryWaitMax
}

// Notifier posts every execution event to the hub. Server errors and
// connection failures are retried; any other non-2xx status fails the event.
type Notifier struct {
	url    string
	client *retryablehttp.Client
}

func New(config Config) (*Notifier, error) {
	if !strings.HasPrefix(config.URL, "http://") && !strings.HasPrefix(config.URL, "https://") {
		return nil, fmt.Errorf("%w: %q", errInvalidURL, config.URL)
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = config.Timeout
	client.RetryMax = config.RetryMax
	client.RetryWaitMin = config.RetryWaitMin
	client.RetryWaitMax = config.RetryWaitMax
	client.Logger = nil
	return &Notifier{
		url:    config.URL,
		client: client,
	}, nil
}

func (n *Notifier) Emit(ctx context.Context, event relay.ExecutionEvent) error {
	body, err := json.Marshal(Notification{
		Tool: Tool,
		Input: Input{
			Event:   ExecutionEvent,
			Payload: event,
		},
	})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify %s: %w", n.url, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, res.StatusCode, http.StatusText(res.StatusCode))
	}
	return nil
}
