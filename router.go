// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
)

var (
	ErrExistingDestination     = errors.New("existing destination")
	ErrUnregisteredDestination = errors.New("unregistered destination")
)

const (
	destinationLabel = "destination"
	resultLabel      = "result"

	succeededResult = "succeeded"
	failedResult    = "failed"
)

type routerMetrics struct {
	dispatchTime  metric.GaugeVec
	dispatchCount metric.CounterVec
}

func newRouterMetrics(registerer metric.Registerer, namespace string) (routerMetrics, error) {
	labels := []string{destinationLabel, resultLabel}
	m := routerMetrics{
		dispatchTime: metric.NewGaugeVec(
			metric.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatch_time",
				Help:      "destination execution time (ns)",
			},
			labels,
		),
		dispatchCount: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_count",
				Help:      "destination executions (n)",
			},
			labels,
		),
	}
	err := errors.Join(
		registerer.Register(metric.AsCollector(m.dispatchTime)),
		registerer.Register(metric.AsCollector(m.dispatchCount)),
	)
	return m, err
}

func (m *routerMetrics) observe(labels map[string]string, start time.Time) {
	m.dispatchTime.With(labels).Add(float64(time.Since(start)))
	m.dispatchCount.With(labels).Inc()
}

// Router forwards payloads to the destination registered under the
// identifier a message was routed by. Identifiers are opaque; the router
// holds no allow-list beyond what has been registered.
type Router struct {
	log     log.Logger
	metrics routerMetrics

	lock         sync.RWMutex
	destinations map[ids.ID]Destination
	fallback     Destination
}

// NewRouter returns a router with no registered destinations
func NewRouter(log log.Logger, registerer metric.Registerer, namespace string) (*Router, error) {
	m, err := newRouterMetrics(registerer, namespace)
	if err != nil {
		return nil, err
	}
	return &Router{
		log:          log,
		metrics:      m,
		destinations: make(map[ids.ID]Destination),
	}, nil
}

// AddDestination registers [destination] under [destinationID]
func (r *Router) AddDestination(destinationID ids.ID, destination Destination) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.destinations[destinationID]; ok {
		return fmt.Errorf("failed to register destination %s: %w", destinationID, ErrExistingDestination)
	}

	r.destinations[destinationID] = destination
	return nil
}

// SetFallback registers a destination that receives every payload whose
// identifier has no registered destination. A nil fallback removes it.
func (r *Router) SetFallback(destination Destination) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.fallback = destination
}

// Dispatch forwards [execution] to its destination. Any failure is returned
// as ErrDispatchFailed carrying the cause.
func (r *Router) Dispatch(ctx context.Context, execution Execution) error {
	start := time.Now()
	destination, ok := r.destination(execution.Destination)
	if !ok {
		r.log.Debug("dropping payload for unregistered destination",
			log.Stringer("messageID", execution.MessageID),
			log.Stringer("destination", execution.Destination),
		)
		return ErrDispatchFailed.wrap(fmt.Errorf("%w: %s", ErrUnregisteredDestination, execution.Destination))
	}

	labels := metric.Labels{
		destinationLabel: execution.Destination.String(),
		resultLabel:      succeededResult,
	}
	if err := destination.Execute(ctx, execution); err != nil {
		labels[resultLabel] = failedResult
		r.metrics.observe(labels, start)

		r.log.Debug("destination rejected payload",
			log.Stringer("messageID", execution.MessageID),
			log.Stringer("destination", execution.Destination),
			log.Binary("payload", execution.Payload),
			log.Err(err),
		)
		return ErrDispatchFailed.wrap(err)
	}

	r.metrics.observe(labels, start)
	return nil
}

func (r *Router) destination(destinationID ids.ID) (Destination, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	destination, ok := r.destinations[destinationID]
	if !ok && r.fallback != nil {
		return r.fallback, true
	}
	return destination, ok
}
