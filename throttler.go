// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var (
	ErrThrottled = errors.New("throttled")

	_ Destination = (*ThrottledDestination)(nil)
)

// Throttler decides whether a unit of work for [key] may proceed
type Throttler[K comparable] interface {
	Handle(key K) bool
}

// RateThrottler allows up to [limit] calls per key in any burst, refilling
// at [limit] calls per [period].
type RateThrottler[K comparable] struct {
	limit rate.Limit
	burst int

	lock     sync.Mutex
	limiters map[K]*rate.Limiter
}

func NewThrottler[K comparable](period time.Duration, limit int) *RateThrottler[K] {
	return &RateThrottler[K]{
		limit:    rate.Limit(float64(limit) / period.Seconds()),
		burst:    limit,
		limiters: make(map[K]*rate.Limiter),
	}
}

func (t *RateThrottler[K]) Handle(key K) bool {
	t.lock.Lock()
	limiter, ok := t.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(t.limit, t.burst)
		t.limiters[key] = limiter
	}
	t.lock.Unlock()

	return limiter.Allow()
}

func NewThrottledDestination(destination Destination, throttler Throttler[ids.ID], log log.Logger) *ThrottledDestination {
	return &ThrottledDestination{
		destination: destination,
		throttler:   throttler,
		log:         log,
	}
}

// ThrottledDestination rejects payloads for destinations that exceeded their
// rate. A throttled message is not marked as processed and may be
// resubmitted.
type ThrottledDestination struct {
	destination Destination
	throttler   Throttler[ids.ID]
	log         log.Logger
}

func (t ThrottledDestination) Execute(ctx context.Context, execution Execution) error {
	if !t.throttler.Handle(execution.Destination) {
		t.log.Debug("rejecting payload",
			log.Stringer("messageID", execution.MessageID),
			log.Stringer("destination", execution.Destination),
			log.UserString("reason", "throttled"),
		)
		return ErrThrottled
	}

	return t.destination.Execute(ctx, execution)
}
