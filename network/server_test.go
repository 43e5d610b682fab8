// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/math/set"
	"github.com/luxfi/relay"
	"github.com/luxfi/relay/network"
	"github.com/luxfi/relay/network/networktest"
	"github.com/luxfi/relay/state"
	"github.com/luxfi/relay/verifier"
)

type testServer struct {
	adapter      *relay.Adapter
	client       *network.RelayClient
	clientNodeID ids.NodeID
	serverNodeID ids.NodeID
	relayerKey   ed25519.PrivateKey
	authorityKey ed25519.PrivateKey
	executions   chan relay.Execution
}

func newEd25519Key(t *testing.T) (ed25519.PrivateKey, ids.ID) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, verifier.Ed25519Registry(pub)
}

func newTestServer(t *testing.T) *testServer {
	require := require.New(t)
	ctx := context.Background()

	relayerKey, registry := newEd25519Key(t)
	authorityKey, authority := newEd25519Key(t)

	store := state.NewMemory()
	require.NoError(relay.Initialize(ctx, store, authority, registry))

	executions := make(chan relay.Execution, 8)
	metrics := metric.NewRegistry()
	router, err := relay.NewRouter(log.NewNoOpLogger(), metrics, "")
	require.NoError(err)
	router.SetFallback(relay.DestinationFunc(func(_ context.Context, execution relay.Execution) error {
		executions <- execution
		return nil
	}))

	adapter, err := relay.NewAdapter(log.NewNoOpLogger(), store, verifier.Ed25519{}, router, relay.NoOpEmitter{}, metrics, "")
	require.NoError(err)

	clientNodeID := ids.GenerateTestNodeID()
	serverNodeID := ids.GenerateTestNodeID()
	n := networktest.NewNetworkWithPeers(
		t,
		ctx,
		clientNodeID,
		networktest.Handlers{},
		map[ids.NodeID]networktest.Handlers{
			serverNodeID: {
				network.ProcessMessageHandlerID: network.NewProcessHandler(adapter, log.NewNoOpLogger()),
				network.SetRegistryHandlerID:    network.NewRegistryHandler(adapter, log.NewNoOpLogger()),
			},
		},
	)

	return &testServer{
		adapter:      adapter,
		client:       network.NewRelayClient(n),
		clientNodeID: clientNodeID,
		serverNodeID: serverNodeID,
		relayerKey:   relayerKey,
		authorityKey: authorityKey,
		executions:   executions,
	}
}

func (s *testServer) request(payload string) *network.ProcessRequest {
	message := relay.NewMessage(ids.GenerateTestID(), []byte(payload))
	return &network.ProcessRequest{
		Message:  message,
		Proof:    verifier.SignEd25519(s.relayerKey, message),
		Accounts: []ids.ID{ids.GenerateTestID()},
	}
}

func TestProcessMessage(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := newTestServer(t)
	req := s.request("payload")

	resp, err := s.client.ProcessMessage(ctx, s.serverNodeID, req)
	require.NoError(err)
	require.Equal(relay.MessageID(req.Message), resp.MessageID)

	execution := <-s.executions
	require.Equal(resp.MessageID, execution.MessageID)
	require.Equal([]byte("payload"), execution.Payload)
	require.Equal(req.Accounts, execution.Accounts)

	_, err = s.client.ProcessMessage(ctx, s.serverNodeID, req)
	require.ErrorIs(err, relay.ErrReplay)
	require.Empty(s.executions)
}

func TestProcessMessageErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     func(s *testServer) *network.ProcessRequest
		wantErr error
	}{
		{
			name: "invalid proof",
			req: func(s *testServer) *network.ProcessRequest {
				req := s.request("payload")
				req.Proof = verifier.SignEd25519(s.authorityKey, req.Message)
				return req
			},
			wantErr: relay.ErrInvalidProof,
		},
		{
			name: "malformed message",
			req: func(s *testServer) *network.ProcessRequest {
				message := []byte("short")
				return &network.ProcessRequest{
					Message: message,
					Proof:   verifier.SignEd25519(s.relayerKey, message),
				}
			},
			wantErr: relay.ErrMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			s := newTestServer(t)
			_, err := s.client.ProcessMessage(ctx, s.serverNodeID, tt.req(s))
			require.ErrorIs(t, err, tt.wantErr)
			require.Empty(t, s.executions)
		})
	}
}

func TestProcessHandlerMalformedRequest(t *testing.T) {
	require := require.New(t)

	s := newTestServer(t)
	handler := network.NewProcessHandler(s.adapter, log.NewNoOpLogger())
	_, err := handler.Request(context.Background(), s.clientNodeID, time.Time{}, []byte{1, 2, 3})
	require.Equal(network.ErrMalformedRequest, err)
}

func TestGossipMessage(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := newTestServer(t)
	req := s.request("gossiped")
	require.NoError(s.client.GossipMessage(ctx, network.SendConfig{
		NodeIDs: set.Of(s.serverNodeID),
	}, req))

	select {
	case execution := <-s.executions:
		require.Equal(relay.MessageID(req.Message), execution.MessageID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for gossiped message")
	}
}

func TestSetRegistry(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := newTestServer(t)
	newRelayerKey, newRegistry := newEd25519Key(t)

	update := network.SignRegistryUpdate(s.authorityKey, newRegistry, 0)
	require.NoError(s.client.SetRegistry(ctx, s.serverNodeID, update))

	adapterState, err := s.adapter.State(ctx)
	require.NoError(err)
	require.Equal(newRegistry, adapterState.Registry)
	require.Equal(uint64(1), adapterState.Version)

	// a signed update cannot be applied twice
	require.ErrorIs(s.client.SetRegistry(ctx, s.serverNodeID, update), relay.ErrStaleVersion)

	// messages signed under the old registry are rejected
	_, err = s.client.ProcessMessage(ctx, s.serverNodeID, s.request("old"))
	require.ErrorIs(err, relay.ErrInvalidProof)

	s.relayerKey = newRelayerKey
	_, err = s.client.ProcessMessage(ctx, s.serverNodeID, s.request("new"))
	require.NoError(err)
}

func TestSetRegistryErrors(t *testing.T) {
	tests := []struct {
		name    string
		update  func(t *testing.T, s *testServer) *network.SetRegistryRequest
		wantErr error
	}{
		{
			name: "not the authority",
			update: func(t *testing.T, _ *testServer) *network.SetRegistryRequest {
				key, _ := newEd25519Key(t)
				return network.SignRegistryUpdate(key, ids.GenerateTestID(), 0)
			},
			wantErr: relay.ErrUnauthorized,
		},
		{
			name: "signature over another registry",
			update: func(_ *testing.T, s *testServer) *network.SetRegistryRequest {
				update := network.SignRegistryUpdate(s.authorityKey, ids.GenerateTestID(), 0)
				update.Registry = ids.GenerateTestID()
				return update
			},
			wantErr: relay.ErrUnauthorized,
		},
		{
			name: "missing signature",
			update: func(_ *testing.T, s *testServer) *network.SetRegistryRequest {
				update := network.SignRegistryUpdate(s.authorityKey, ids.GenerateTestID(), 0)
				update.Signature = nil
				return update
			},
			wantErr: relay.ErrUnauthorized,
		},
		{
			name: "stale version",
			update: func(_ *testing.T, s *testServer) *network.SetRegistryRequest {
				return network.SignRegistryUpdate(s.authorityKey, ids.GenerateTestID(), 3)
			},
			wantErr: relay.ErrStaleVersion,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			s := newTestServer(t)
			before, err := s.adapter.State(ctx)
			require.NoError(err)

			err = s.client.SetRegistry(ctx, s.serverNodeID, tt.update(t, s))
			require.ErrorIs(err, tt.wantErr)

			after, err := s.adapter.State(ctx)
			require.NoError(err)
			require.Equal(before, after)
		})
	}
}
