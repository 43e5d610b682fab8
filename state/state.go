// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the adapter configuration and the replay ledger.
//
// A Store applies each Update as a single all-or-nothing unit and serializes
// writers, which is the host guarantee the relay pipeline relies on: a message
// marked as seen inside a failed Update is never observable afterwards.
package state

import (
	"context"
	"errors"

	"github.com/luxfi/ids"
)

var (
	ErrNotInitialized     = errors.New("adapter state not initialized")
	ErrAlreadyInitialized = errors.New("adapter state already initialized")
	ErrEmptyAuthority     = errors.New("authority must not be empty")
	ErrAlreadySeen        = errors.New("message already seen")
	ErrClosed             = errors.New("store closed")
)

// AdapterState is the singleton configuration record of an adapter.
type AdapterState struct {
	// Authority is the only identity allowed to change the configuration.
	// It is never empty once initialized.
	Authority ids.ID `json:"authority"`
	// Registry is the trust anchor proofs are verified against.
	Registry ids.ID `json:"registry"`
	// Version is incremented on every configuration change.
	Version uint64 `json:"version"`
}

// Verify returns nil if [s] may be stored
func (s AdapterState) Verify() error {
	if s.Authority == ids.Empty {
		return ErrEmptyAuthority
	}
	return nil
}

// Tx is the view of the store inside a View or Update call. A Tx must not be
// used after the function it was passed to returns.
type Tx interface {
	// State returns the adapter configuration.
	State() (AdapterState, error)
	// SetState replaces the adapter configuration.
	SetState(AdapterState) error
	// Seen reports whether [messageID] is in the replay ledger.
	Seen(messageID ids.ID) (bool, error)
	// MarkSeen adds [messageID] to the replay ledger. Returns ErrAlreadySeen
	// if it is already present; entries are never removed or overwritten.
	MarkSeen(messageID ids.ID) error
}

// Store persists an AdapterState and its replay ledger.
type Store interface {
	// Initialize creates the adapter configuration. It fails with
	// ErrAlreadyInitialized if the store already holds one.
	Initialize(ctx context.Context, state AdapterState) error
	// View runs [fn] against a read-only snapshot. Mutations fail.
	View(ctx context.Context, fn func(Tx) error) error
	// Update runs [fn] as a single atomic unit. If [fn] returns an error,
	// none of its writes persist and the error is returned unchanged.
	Update(ctx context.Context, fn func(Tx) error) error
	// ForEachSeen calls [fn] for every message ID in the replay ledger until
	// [fn] returns an error.
	ForEachSeen(ctx context.Context, fn func(ids.ID) error) error
	// Close releases the resources held by the store.
	Close() error
}

var errReadOnly = errors.New("read-only transaction")
