// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/log"
	"github.com/luxfi/relay/state"
)

const checkTimeout = 2 * time.Second

var errPeersNotReady = errors.New("peer transport not ready")

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readyResponse struct {
	Ready   bool   `json:"ready"`
	Version uint64 `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// newHTTPHandler serves the node's metrics, liveness and readiness. [peers]
// is closed once the peer transport serves requests, or nil if the node does
// not serve peers.
func newHTTPHandler(n *node, peers <-chan struct{}) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(n.metrics, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		if err := n.healthy(ctx); err != nil {
			n.log.Warn("health check failed", log.Err(err))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{
				Status: "error",
				Error:  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()

		adapterState, err := n.ready(ctx, peers)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, readyResponse{
				Error: err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, readyResponse{
			Ready:   true,
			Version: adapterState.Version,
		})
	})
	return mux
}

// healthy returns an error if the store or Redis cannot be reached. An
// uninitialized adapter is healthy.
func (n *node) healthy(ctx context.Context) error {
	err := n.store.View(ctx, func(tx state.Tx) error {
		_, err := tx.State()
		return err
	})
	if err != nil && !errors.Is(err, state.ErrNotInitialized) {
		return fmt.Errorf("store: %w", err)
	}
	if err := n.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// ready returns the adapter configuration once the adapter can process
// messages
func (n *node) ready(ctx context.Context, peers <-chan struct{}) (state.AdapterState, error) {
	adapterState, err := n.adapter.State(ctx)
	if err != nil {
		return state.AdapterState{}, err
	}
	if peers != nil {
		select {
		case <-peers:
		default:
			return state.AdapterState{}, errPeersNotReady
		}
	}
	return adapterState, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
