// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/relay/state"
	"github.com/luxfi/relay/verifier"
)

const tracerName = "github.com/luxfi/relay"

var _ Dispatcher = (*Router)(nil)

// Dispatcher delivers a verified payload to its destination
type Dispatcher interface {
	Dispatch(ctx context.Context, execution Execution) error
}

// ExecutionContext carries the host-supplied inputs forwarded to the
// destination alongside the payload.
type ExecutionContext struct {
	Accounts []ids.ID
}

// Initialize creates the adapter configuration in [store]. It may only be
// called once per store.
func Initialize(ctx context.Context, store state.Store, authority ids.ID, registry ids.ID) error {
	return store.Initialize(ctx, state.AdapterState{
		Authority: authority,
		Registry:  registry,
	})
}

// Adapter verifies, deduplicates and dispatches relayed messages.
//
// Each message is processed inside a single store Update: if any step fails,
// including the dispatch, the message is not recorded as processed and may be
// resubmitted. Destinations are invoked while the store's writer is held and
// must not call back into the Adapter.
type Adapter struct {
	log        log.Logger
	store      state.Store
	verifier   verifier.Verifier
	dispatcher Dispatcher
	emitter    Emitter
	metrics    metrics
	tracer     trace.Tracer
}

func NewAdapter(
	log log.Logger,
	store state.Store,
	verifier verifier.Verifier,
	dispatcher Dispatcher,
	emitter Emitter,
	registerer metric.Registerer,
	namespace string,
) (*Adapter, error) {
	m, err := newMetrics(registerer, namespace)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		log:        log,
		store:      store,
		verifier:   verifier,
		dispatcher: dispatcher,
		emitter:    emitter,
		metrics:    m,
		tracer:     otel.Tracer(tracerName),
	}, nil
}

// ProcessMessage verifies [proof] for [message] against the stored registry,
// rejects replays and dispatches the payload to the destination encoded in the
// first 32 bytes of [message]. On success the message is recorded as processed
// and the emitted event is returned.
func (a *Adapter) ProcessMessage(
	ctx context.Context,
	message []byte,
	proof []byte,
	execCtx ExecutionContext,
) (*ExecutionEvent, error) {
	start := time.Now()
	messageID := MessageID(message)

	ctx, span := a.tracer.Start(ctx, "relay.ProcessMessage", trace.WithAttributes(
		attribute.String("relay.message_id", messageID.String()),
		attribute.Int("relay.message_size", len(message)),
	))
	defer span.End()

	event, err := a.processMessage(ctx, messageID, message, proof, execCtx)
	result := outcome(err)
	a.metrics.observeMessage(result, start)
	span.SetAttributes(attribute.String("relay.outcome", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		a.log.Debug("rejected message",
			log.Stringer("messageID", messageID),
			log.String("outcome", result),
			log.Err(err),
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("relay.destination", event.Destination.String()))

	// The message is committed at this point. A failed notification must not
	// be reported as a failed message.
	if err := a.emitter.Emit(ctx, *event); err != nil {
		a.log.Warn("failed to emit execution event",
			log.Stringer("messageID", messageID),
			log.Stringer("destination", event.Destination),
			log.Err(err),
		)
	}
	return event, nil
}

func (a *Adapter) processMessage(
	ctx context.Context,
	messageID ids.ID,
	message []byte,
	proof []byte,
	execCtx ExecutionContext,
) (*ExecutionEvent, error) {
	destination, payload, err := SplitMessage(message)
	if err != nil {
		return nil, err
	}

	err = a.store.Update(ctx, func(tx state.Tx) error {
		adapterState, err := tx.State()
		if err != nil {
			return stateError(err)
		}
		if !a.verifier.Verify(ctx, message, proof, adapterState.Registry) {
			return ErrInvalidProof
		}

		seen, err := tx.Seen(messageID)
		if err != nil {
			return err
		}
		if seen {
			return ErrReplay
		}
		if err := tx.MarkSeen(messageID); err != nil {
			return stateError(err)
		}

		return a.dispatcher.Dispatch(ctx, Execution{
			MessageID:   messageID,
			Destination: destination,
			Payload:     payload,
			Accounts:    execCtx.Accounts,
		})
	})
	if err != nil {
		return nil, err
	}

	return &ExecutionEvent{
		MessageID:   messageID,
		Destination: destination,
		PayloadSize: len(payload),
		Timestamp:   time.Now(),
	}, nil
}

// SetRegistry replaces the trust anchor proofs are verified against. Only the
// stored authority may call it.
func (a *Adapter) SetRegistry(ctx context.Context, caller ids.ID, registry ids.ID) error {
	return a.setRegistry(ctx, caller, registry, nil)
}

// CompareAndSetRegistry is SetRegistry conditioned on the configuration still
// being at [version]. It fails with ErrStaleVersion otherwise.
func (a *Adapter) CompareAndSetRegistry(ctx context.Context, caller ids.ID, registry ids.ID, version uint64) error {
	return a.setRegistry(ctx, caller, registry, &version)
}

func (a *Adapter) setRegistry(ctx context.Context, caller ids.ID, registry ids.ID, version *uint64) error {
	ctx, span := a.tracer.Start(ctx, "relay.SetRegistry", trace.WithAttributes(
		attribute.String("relay.caller", caller.String()),
		attribute.String("relay.registry", registry.String()),
	))
	defer span.End()

	var previous ids.ID
	err := a.store.Update(ctx, func(tx state.Tx) error {
		adapterState, err := tx.State()
		if err != nil {
			return stateError(err)
		}
		if caller != adapterState.Authority {
			return ErrUnauthorized
		}
		if version != nil && *version != adapterState.Version {
			return ErrStaleVersion.wrap(fmt.Errorf("expected version %d but found %d", *version, adapterState.Version))
		}

		previous = adapterState.Registry
		adapterState.Registry = registry
		adapterState.Version++
		return tx.SetState(adapterState)
	})

	result := outcome(err)
	a.metrics.observeRegistryUpdate(result)
	span.SetAttributes(attribute.String("relay.outcome", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		a.log.Debug("rejected registry update",
			log.Stringer("caller", caller),
			log.String("outcome", result),
			log.Err(err),
		)
		return err
	}

	a.log.Info("updated registry",
		log.Stringer("previous", previous),
		log.Stringer("registry", registry),
	)
	return nil
}

// State returns the current adapter configuration
func (a *Adapter) State(ctx context.Context) (state.AdapterState, error) {
	var adapterState state.AdapterState
	err := a.store.View(ctx, func(tx state.Tx) error {
		var err error
		adapterState, err = tx.State()
		return stateError(err)
	})
	return adapterState, err
}

// Processed reports whether the message with [messageID] was executed
func (a *Adapter) Processed(ctx context.Context, messageID ids.ID) (bool, error) {
	var seen bool
	err := a.store.View(ctx, func(tx state.Tx) error {
		var err error
		seen, err = tx.Seen(messageID)
		return err
	})
	return seen, err
}

// stateError translates store errors into the errors reported to submitters
func stateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, state.ErrNotInitialized):
		return ErrNotInitialized.wrap(err)
	case errors.Is(err, state.ErrAlreadySeen):
		return ErrReplay.wrap(err)
	default:
		return err
	}
}
