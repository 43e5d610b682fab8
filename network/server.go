// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/relay"
)

var (
	_ Handler = (*ProcessHandler)(nil)
	_ Handler = (*RegistryHandler)(nil)

	_ Adapter = (*relay.Adapter)(nil)
)

// Adapter is the relay pipeline served to peers
type Adapter interface {
	ProcessMessage(ctx context.Context, message []byte, proof []byte, execCtx relay.ExecutionContext) (*relay.ExecutionEvent, error)
	CompareAndSetRegistry(ctx context.Context, caller ids.ID, registry ids.ID, version uint64) error
}

// RegisterAdapter serves [adapter] on [network] under ProcessMessageHandlerID
// and SetRegistryHandlerID. Both protocols are restricted to [allowed] and
// throttled per node by [throttler]; either may be nil.
func RegisterAdapter(
	network *Network,
	adapter Adapter,
	allowed NodeSet,
	throttler relay.Throttler[ids.NodeID],
	log log.Logger,
) error {
	handlers := map[uint64]Handler{
		ProcessMessageHandlerID: NewProcessHandler(adapter, log),
		SetRegistryHandlerID:    NewRegistryHandler(adapter, log),
	}
	for handlerID, handler := range handlers {
		admitted := NewAdmissionHandler(handler, allowed, throttler, log)
		if err := network.AddHandler(handlerID, admitted); err != nil {
			return err
		}
	}
	return nil
}

func NewProcessHandler(adapter Adapter, log log.Logger) *ProcessHandler {
	return &ProcessHandler{
		adapter: adapter,
		log:     log,
	}
}

// ProcessHandler submits ProcessRequests to the adapter. Requests are
// answered with the message ID or the relay error; gossiped messages are
// processed and their outcome is only logged.
type ProcessHandler struct {
	adapter Adapter
	log     log.Logger
}

func (p *ProcessHandler) Gossip(ctx context.Context, nodeID ids.NodeID, gossipBytes []byte) {
	event, err := p.process(ctx, gossipBytes)
	if err != nil {
		p.log.Debug("dropping gossiped message",
			log.Stringer("nodeID", nodeID),
			log.Err(err),
		)
		return
	}

	p.log.Debug("processed gossiped message",
		log.Stringer("nodeID", nodeID),
		log.Stringer("messageID", event.MessageID),
	)
}

func (p *ProcessHandler) Request(ctx context.Context, _ ids.NodeID, _ time.Time, requestBytes []byte) ([]byte, *Error) {
	event, err := p.process(ctx, requestBytes)
	if err != nil {
		return nil, err
	}
	return MarshalProcessResponse(&ProcessResponse{
		MessageID: event.MessageID,
	}), nil
}

func (p *ProcessHandler) process(ctx context.Context, requestBytes []byte) (*relay.ExecutionEvent, *Error) {
	req, err := UnmarshalProcessRequest(requestBytes)
	if err != nil {
		return nil, ErrMalformedRequest
	}

	event, err := p.adapter.ProcessMessage(ctx, req.Message, req.Proof, relay.ExecutionContext{
		Accounts: req.Accounts,
	})
	if err != nil {
		return nil, toAppError(err)
	}
	return event, nil
}

func NewRegistryHandler(adapter Adapter, log log.Logger) *RegistryHandler {
	return &RegistryHandler{
		adapter: adapter,
		log:     log,
	}
}

// RegistryHandler applies authority-signed registry updates. The caller is
// identified by its ed25519 public key and must be the stored authority.
// Every update names the configuration version it applies to, so a signed
// update can be applied at most once.
type RegistryHandler struct {
	adapter Adapter
	log     log.Logger
}

func (*RegistryHandler) Gossip(context.Context, ids.NodeID, []byte) {}

func (r *RegistryHandler) Request(ctx context.Context, nodeID ids.NodeID, _ time.Time, requestBytes []byte) ([]byte, *Error) {
	req, err := UnmarshalSetRegistryRequest(requestBytes)
	if err != nil {
		return nil, ErrMalformedRequest
	}

	if len(req.Signature) != ed25519.SignatureSize ||
		!ed25519.Verify(req.Caller[:], RegistryUpdateBytes(req.Registry, req.Version), req.Signature) {
		r.log.Debug("rejecting registry update",
			log.Stringer("nodeID", nodeID),
			log.Stringer("caller", req.Caller),
			log.UserString("reason", "invalid signature"),
		)
		return nil, toAppError(relay.ErrUnauthorized)
	}

	if err := r.adapter.CompareAndSetRegistry(ctx, req.Caller, req.Registry, req.Version); err != nil {
		return nil, toAppError(err)
	}
	return nil, nil
}

// SignRegistryUpdate returns a SetRegistryRequest signed by [key]
func SignRegistryUpdate(key ed25519.PrivateKey, registry ids.ID, version uint64) *SetRegistryRequest {
	var caller ids.ID
	copy(caller[:], key.Public().(ed25519.PublicKey))
	return &SetRegistryRequest{
		Registry:  registry,
		Version:   version,
		Caller:    caller,
		Signature: ed25519.Sign(key, RegistryUpdateBytes(registry, version)),
	}
}
