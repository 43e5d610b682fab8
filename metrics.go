// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"time"

	"github.com/luxfi/metric"
)

const (
	outcomeLabel = "outcome"

	completedOutcome      = "completed"
	invalidProofOutcome   = "invalid_proof"
	replayOutcome         = "replay"
	malformedOutcome      = "malformed"
	dispatchFailedOutcome = "dispatch_failed"
	notInitializedOutcome = "not_initialized"
	unauthorizedOutcome   = "unauthorized"
	staleVersionOutcome   = "stale_version"
	errorOutcome          = "error"
)

var outcomeLabels = []string{outcomeLabel}

type metrics struct {
	messages        metric.CounterVec
	processTime     metric.GaugeVec
	registryUpdates metric.CounterVec
}

func newMetrics(registerer metric.Registerer, namespace string) (metrics, error) {
	m := metrics{
		messages: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "messages",
				Help:      "processed messages by outcome (n)",
			},
			outcomeLabels,
		),
		processTime: metric.NewGaugeVec(
			metric.GaugeOpts{
				Namespace: namespace,
				Name:      "process_time",
				Help:      "message processing time by outcome (ns)",
			},
			outcomeLabels,
		),
		registryUpdates: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "registry_updates",
				Help:      "registry update attempts by outcome (n)",
			},
			outcomeLabels,
		),
	}
	err := errors.Join(
		registerer.Register(metric.AsCollector(m.messages)),
		registerer.Register(metric.AsCollector(m.processTime)),
		registerer.Register(metric.AsCollector(m.registryUpdates)),
	)
	return m, err
}

func (m *metrics) observeMessage(outcome string, start time.Time) {
	labels := metric.Labels{outcomeLabel: outcome}
	m.messages.With(labels).Inc()
	m.processTime.With(labels).Add(float64(time.Since(start)))
}

func (m *metrics) observeRegistryUpdate(outcome string) {
	m.registryUpdates.With(metric.Labels{outcomeLabel: outcome}).Inc()
}

// outcome maps the result of an operation to its metric label
func outcome(err error) string {
	switch {
	case err == nil:
		return completedOutcome
	case errors.Is(err, ErrInvalidProof):
		return invalidProofOutcome
	case errors.Is(err, ErrReplay):
		return replayOutcome
	case errors.Is(err, ErrMalformed):
		return malformedOutcome
	case errors.Is(err, ErrDispatchFailed):
		return dispatchFailedOutcome
	case errors.Is(err, ErrNotInitialized):
		return notInitializedOutcome
	case errors.Is(err, ErrUnauthorized):
		return unauthorizedOutcome
	case errors.Is(err, ErrStaleVersion):
		return staleVersionOutcome
	default:
		return errorOutcome
	}
}
