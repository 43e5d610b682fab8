// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
)

var (
	ErrExistingHandler     = errors.New("existing handler")
	ErrUnrequestedResponse = errors.New("unrequested response")
)

const (
	opLabel      = "op"
	handlerLabel = "handlerID"

	requestOp  = "Request"
	responseOp = "Response"
	errorOp    = "Error"
	gossipOp   = "Gossip"
)

type pendingRequest struct {
	handlerID string
	callback  ResponseCallback
}

type metrics struct {
	msgTime  metric.GaugeVec
	msgCount metric.CounterVec
}

func newMetrics(registerer metric.Registerer, namespace string) (metrics, error) {
	labelNames := []string{opLabel, handlerLabel}
	m := metrics{
		msgTime: metric.NewGaugeVec(
			metric.GaugeOpts{
				Namespace: namespace,
				Name:      "msg_time",
				Help:      "message handling time (ns)",
			},
			labelNames,
		),
		msgCount: metric.NewCounterVec(
			metric.CounterOpts{
				Namespace: namespace,
				Name:      "msg_count",
				Help:      "message count (n)",
			},
			labelNames,
		),
	}
	err := errors.Join(
		registerer.Register(metric.AsCollector(m.msgTime)),
		registerer.Register(metric.AsCollector(m.msgCount)),
	)
	return m, err
}

func (m *metrics) observe(labels map[string]string, start time.Time) {
	m.msgTime.With(labels).Add(float64(time.Since(start)))
	m.msgCount.With(labels).Inc()
}

// router routes incoming relay messages to the handler registered for their
// protocol prefix. Requests must be made using the registered handler's
// corresponding Client.
type router struct {
	log     log.Logger
	sender  Sender
	metrics metrics

	lock            sync.RWMutex
	handlers        map[uint64]*responder
	pendingRequests map[uint32]pendingRequest
	requestID       uint32
}

func newRouter(log log.Logger, sender Sender, metrics metrics) *router {
	return &router{
		log:             log,
		sender:          sender,
		metrics:         metrics,
		handlers:        make(map[uint64]*responder),
		pendingRequests: make(map[uint32]pendingRequest),
		// invariant: clients use odd-numbered requestIDs
		requestID: 1,
	}
}

func (r *router) addHandler(handlerID uint64, handler Handler) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.handlers[handlerID]; ok {
		return fmt.Errorf("failed to register handler id %d: %w", handlerID, ErrExistingHandler)
	}

	r.handlers[handlerID] = &responder{
		Handler:   handler,
		handlerID: handlerID,
		log:       r.log,
		sender:    r.sender,
	}
	return nil
}

// Request routes a request to a Handler based on the handler prefix. A
// request for an unknown handler is answered with ErrUnregisteredHandler. A
// request received after its deadline is dropped, as the requester has
// already given up on it.
//
// Any error condition propagated outside Handler application logic is
// considered fatal
func (r *router) Request(ctx context.Context, nodeID ids.NodeID, requestID uint32, deadline time.Time, request []byte) error {
	start := time.Now()
	if !deadline.IsZero() && start.After(deadline) {
		r.log.Debug("dropping expired request",
			log.Stringer("nodeID", nodeID),
			log.Uint32("requestID", requestID),
			log.Time("deadline", deadline),
		)
		return nil
	}

	parsedMsg, handler, handlerID, ok := r.parse(request)
	if !ok {
		r.log.Debug("received message for unregistered handler",
			log.UserString("messageOp", requestOp),
			log.Stringer("nodeID", nodeID),
			log.Uint32("requestID", requestID),
			log.Time("deadline", deadline),
			log.Binary("message", request),
		)

		// Requests we cannot parse a handler id for are handled the same way
		// as requests for which we do not have a registered handler.
		return r.sender.SendError(ctx, nodeID, requestID, ErrUnregisteredHandler)
	}

	if err := handler.Request(ctx, nodeID, requestID, deadline, parsedMsg); err != nil {
		return err
	}

	r.metrics.observe(
		metric.Labels{
			opLabel:      requestOp,
			handlerLabel: handlerID,
		},
		start,
	)
	return nil
}

// RequestFailed routes a failed request to the callback corresponding to
// requestID.
func (r *router) RequestFailed(ctx context.Context, nodeID ids.NodeID, requestID uint32, appErr *Error) error {
	start := time.Now()
	pending, ok := r.clearRequest(requestID)
	if !ok {
		return ErrUnrequestedResponse
	}

	pending.callback(ctx, nodeID, nil, appErr)

	r.metrics.observe(
		metric.Labels{
			opLabel:      errorOp,
			handlerLabel: pending.handlerID,
		},
		start,
	)
	return nil
}

// Response routes a response to the callback corresponding to requestID.
func (r *router) Response(ctx context.Context, nodeID ids.NodeID, requestID uint32, response []byte) error {
	start := time.Now()
	pending, ok := r.clearRequest(requestID)
	if !ok {
		return ErrUnrequestedResponse
	}

	pending.callback(ctx, nodeID, response, nil)

	r.metrics.observe(
		metric.Labels{
			opLabel:      responseOp,
			handlerLabel: pending.handlerID,
		},
		start,
	)
	return nil
}

// Gossip routes a gossip message to a Handler based on the handler prefix.
// The message is dropped if no matching handler can be found.
func (r *router) Gossip(ctx context.Context, nodeID ids.NodeID, gossip []byte) error {
	start := time.Now()
	parsedMsg, handler, handlerID, ok := r.parse(gossip)
	if !ok {
		r.log.Debug("received message for unregistered handler",
			log.UserString("messageOp", gossipOp),
			log.Stringer("nodeID", nodeID),
			log.Binary("message", gossip),
		)
		return nil
	}

	handler.Gossip(ctx, nodeID, parsedMsg)

	r.metrics.observe(
		metric.Labels{
			opLabel:      gossipOp,
			handlerLabel: handlerID,
		},
		start,
	)
	return nil
}

// parse maps a prefixed gossip or request message to its handler.
//
// Returns:
// - The unprefixed protocol message.
// - The protocol responder.
// - The protocol metric name.
// - A boolean indicating that parsing succeeded.
//
// Invariant: Assumes [r.lock] isn't held.
func (r *router) parse(prefixedMsg []byte) ([]byte, *responder, string, bool) {
	handlerID, msg, ok := ParseMessage(prefixedMsg)
	if !ok {
		return nil, nil, "", false
	}

	r.lock.RLock()
	defer r.lock.RUnlock()

	handler, ok := r.handlers[handlerID]
	return msg, handler, strconv.FormatUint(handlerID, 10), ok
}

// Invariant: Assumes [r.lock] isn't held.
func (r *router) clearRequest(requestID uint32) (pendingRequest, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	pending, ok := r.pendingRequests[requestID]
	delete(r.pendingRequests, requestID)
	return pending, ok
}

// ParseMessage splits a gossip or request message into its protocol ID and
// the unprefixed message.
func ParseMessage(msg []byte) (uint64, []byte, bool) {
	handlerID, bytesRead := binary.Uvarint(msg)
	if bytesRead <= 0 {
		return 0, nil, false
	}
	return handlerID, msg[bytesRead:], true
}
