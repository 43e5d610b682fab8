// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

var (
	ErrEmitQueueFull = errors.New("emit queue full")
	ErrEmitterClosed = errors.New("emitter closed")

	_ Emitter = (*NoOpEmitter)(nil)
	_ Emitter = (MultiEmitter)(nil)
	_ Emitter = (EmitterFunc)(nil)
	_ Emitter = (*AsyncEmitter)(nil)
)

// ExecutionEvent records a completed dispatch. It is emitted exactly once,
// after the message has been committed as processed.
type ExecutionEvent struct {
	MessageID   ids.ID    `json:"messageID"`
	Destination ids.ID    `json:"destination"`
	PayloadSize int       `json:"payloadSize"`
	Timestamp   time.Time `json:"timestamp"`
}

// Emitter publishes execution events to external observers
type Emitter interface {
	Emit(ctx context.Context, event ExecutionEvent) error
}

type EmitterFunc func(ctx context.Context, event ExecutionEvent) error

func (f EmitterFunc) Emit(ctx context.Context, event ExecutionEvent) error {
	return f(ctx, event)
}

// NoOpEmitter drops all events
type NoOpEmitter struct{}

func (NoOpEmitter) Emit(context.Context, ExecutionEvent) error {
	return nil
}

// MultiEmitter emits to every emitter, even if some of them fail
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, event ExecutionEvent) error {
	errs := make([]error, 0, len(m))
	for _, emitter := range m {
		if err := emitter.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncEmitter hands events to [emitter] from a background worker, so a slow
// observer never delays message processing. Events that arrive while
// [queueSize] events are pending are dropped.
type AsyncEmitter struct {
	emitter Emitter
	log     log.Logger
	timeout time.Duration

	lock   sync.RWMutex
	closed bool
	events chan ExecutionEvent
	done   chan struct{}
}

// NewAsyncEmitter starts the worker. Each event is emitted with [timeout],
// independent of the context Emit was called with.
func NewAsyncEmitter(emitter Emitter, log log.Logger, queueSize int, timeout time.Duration) *AsyncEmitter {
	a := &AsyncEmitter{
		emitter: emitter,
		log:     log,
		timeout: timeout,
		events:  make(chan ExecutionEvent, queueSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Emit queues [event]. It returns ErrEmitQueueFull if the event was dropped.
func (a *AsyncEmitter) Emit(_ context.Context, event ExecutionEvent) error {
	a.lock.RLock()
	defer a.lock.RUnlock()

	if a.closed {
		return ErrEmitterClosed
	}
	select {
	case a.events <- event:
		return nil
	default:
		return ErrEmitQueueFull
	}
}

// Close stops accepting events and returns once the queued events were
// emitted
func (a *AsyncEmitter) Close() {
	a.lock.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.lock.Unlock()

	<-a.done
}

func (a *AsyncEmitter) run() {
	defer close(a.done)

	for event := range a.events {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.emitter.Emit(ctx, event)
		cancel()
		if err != nil {
			a.log.Warn("failed to emit execution event",
				log.Stringer("messageID", event.MessageID),
				log.Stringer("destination", event.Destination),
				log.Err(err),
			)
		}
	}
}
