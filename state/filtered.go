// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
)

var _ Store = (*Filtered)(nil)

// FilterConfig sizes the seen filter of a Filtered store
type FilterConfig struct {
	MinTargetElements              int
	TargetFalsePositiveProbability float64
	ResetFalsePositiveProbability  float64
}

// DefaultFilterConfig keeps roughly one disk lookup per hundred new messages
// for the first million message IDs.
var DefaultFilterConfig = FilterConfig{
	MinTargetElements:              1 << 20,
	TargetFalsePositiveProbability: 0.01,
	ResetFalsePositiveProbability:  0.05,
}

// Filtered answers Seen for message IDs that were never marked without
// consulting the backing store. Every other call is forwarded.
type Filtered struct {
	store  Store
	log    log.Logger
	config FilterConfig

	// rebuildLock is held exclusively while the filter is repopulated, so
	// no caller observes a partially populated filter.
	rebuildLock sync.RWMutex
	filter      *BloomFilter
	// stale is set while the filter may be missing marked IDs. Every Seen
	// lookup then reaches the backing store. Only written while
	// [rebuildLock] is held exclusively.
	stale atomic.Bool
}

// NewFiltered wraps [store] and populates the filter from its replay ledger.
func NewFiltered(
	ctx context.Context,
	store Store,
	log log.Logger,
	registerer metric.Registerer,
	namespace string,
	config FilterConfig,
) (*Filtered, error) {
	filter, err := NewBloomFilter(
		registerer,
		namespace,
		config.MinTargetElements,
		config.TargetFalsePositiveProbability,
		config.ResetFalsePositiveProbability,
	)
	if err != nil {
		return nil, err
	}

	f := &Filtered{
		store:  store,
		log:    log,
		config: config,
		filter: filter,
	}
	if err := f.populate(ctx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Filtered) Initialize(ctx context.Context, state AdapterState) error {
	return f.store.Initialize(ctx, state)
}

func (f *Filtered) View(ctx context.Context, fn func(Tx) error) error {
	f.rebuildLock.RLock()
	defer f.rebuildLock.RUnlock()

	return f.store.View(ctx, func(tx Tx) error {
		return fn(f.newTx(tx))
	})
}

// Update forwards [fn] to the backing store. A failure to rebuild the filter
// afterwards is logged rather than returned, since the update is already
// committed; the rebuild is retried by the next Update.
func (f *Filtered) Update(ctx context.Context, fn func(Tx) error) error {
	if err := f.update(ctx, fn); err != nil {
		return err
	}
	if !f.needsRebuild() {
		return nil
	}
	if err := f.rebuild(ctx); err != nil {
		f.log.Warn("failed to rebuild seen filter",
			log.Int("count", f.filter.Count()),
			log.Err(err),
		)
	}
	return nil
}

func (f *Filtered) update(ctx context.Context, fn func(Tx) error) error {
	f.rebuildLock.RLock()
	defer f.rebuildLock.RUnlock()

	return f.store.Update(ctx, func(tx Tx) error {
		ftx := f.newTx(tx)
		if err := fn(ftx); err != nil {
			return err
		}
		// Added before the backing store commits. If the commit fails the
		// extra entries only cost false positives.
		for _, messageID := range ftx.marked {
			f.filter.Add(messageID)
		}
		return nil
	})
}

func (f *Filtered) ForEachSeen(ctx context.Context, fn func(ids.ID) error) error {
	return f.store.ForEachSeen(ctx, fn)
}

func (f *Filtered) Close() error {
	return f.store.Close()
}

func (f *Filtered) newTx(tx Tx) *filteredTx {
	return &filteredTx{
		Tx:     tx,
		filter: f.filter,
		stale:  f.stale.Load(),
	}
}

func (f *Filtered) needsRebuild() bool {
	return f.stale.Load() || f.filter.NeedsReset()
}

func (f *Filtered) rebuild(ctx context.Context) error {
	f.rebuildLock.Lock()
	defer f.rebuildLock.Unlock()

	// another caller may have rebuilt while we waited
	if !f.needsRebuild() {
		return nil
	}
	f.stale.Store(true)
	targetElements := max(f.config.MinTargetElements, 2*f.filter.Count())
	if err := f.filter.Reset(targetElements); err != nil {
		return err
	}
	if err := f.fill(ctx); err != nil {
		return err
	}
	f.stale.Store(false)
	return nil
}

func (f *Filtered) populate(ctx context.Context) error {
	f.rebuildLock.Lock()
	defer f.rebuildLock.Unlock()

	return f.fill(ctx)
}

// Invariant: Assumes [f.rebuildLock] is held exclusively.
func (f *Filtered) fill(ctx context.Context) error {
	return f.store.ForEachSeen(ctx, func(messageID ids.ID) error {
		f.filter.Add(messageID)
		return nil
	})
}

type filteredTx struct {
	Tx
	filter *BloomFilter
	stale  bool
	marked []ids.ID
}

func (t *filteredTx) Seen(messageID ids.ID) (bool, error) {
	if !t.stale && !t.filter.Has(messageID) {
		for _, marked := range t.marked {
			if marked == messageID {
				return true, nil
			}
		}
		return false, nil
	}
	return t.Tx.Seen(messageID)
}

func (t *filteredTx) MarkSeen(messageID ids.ID) error {
	if err := t.Tx.MarkSeen(messageID); err != nil {
		return err
	}
	t.marked = append(t.marked, messageID)
	return nil
}
