// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"context"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Updates are serialized by a single writer
// lock and stage their writes until the update function succeeds.
type Memory struct {
	lock        sync.RWMutex
	closed      bool
	initialized bool
	state       AdapterState
	seen        set.Set[ids.ID]
}

func NewMemory() *Memory {
	return &Memory{
		seen: set.NewSet[ids.ID](0),
	}
}

func (m *Memory) Initialize(ctx context.Context, state AdapterState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := state.Verify(); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	switch {
	case m.closed:
		return ErrClosed
	case m.initialized:
		return ErrAlreadyInitialized
	}
	m.state = state
	m.initialized = true
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return fn(&memoryTx{store: m, readOnly: true})
}

func (m *Memory) Update(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if m.closed {
		return ErrClosed
	}

	tx := &memoryTx{
		store:  m,
		staged: set.NewSet[ids.ID](1),
	}
	if err := fn(tx); err != nil {
		return err
	}

	// commit
	if tx.stateDirty {
		m.state = tx.state
	}
	m.seen.Add(tx.staged.List()...)
	return nil
}

func (m *Memory) ForEachSeen(ctx context.Context, fn func(ids.ID) error) error {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.closed {
		return ErrClosed
	}
	for messageID := range m.seen {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(messageID); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of message IDs in the replay ledger
func (m *Memory) Len() int {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.seen.Len()
}

func (m *Memory) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.closed = true
	return nil
}

type memoryTx struct {
	store    *Memory
	readOnly bool

	stateDirty bool
	state      AdapterState
	staged     set.Set[ids.ID]
}

func (t *memoryTx) State() (AdapterState, error) {
	if t.stateDirty {
		return t.state, nil
	}
	if !t.store.initialized {
		return AdapterState{}, ErrNotInitialized
	}
	return t.store.state, nil
}

func (t *memoryTx) SetState(state AdapterState) error {
	if t.readOnly {
		return errReadOnly
	}
	if !t.store.initialized {
		return ErrNotInitialized
	}
	if err := state.Verify(); err != nil {
		return err
	}
	t.state = state
	t.stateDirty = true
	return nil
}

func (t *memoryTx) Seen(messageID ids.ID) (bool, error) {
	return t.store.seen.Contains(messageID) || t.staged.Contains(messageID), nil
}

func (t *memoryTx) MarkSeen(messageID ids.ID) error {
	if t.readOnly {
		return errReadOnly
	}
	if seen, _ := t.Seen(messageID); seen {
		return ErrAlreadySeen
	}
	t.staged.Add(messageID)
	return nil
}
