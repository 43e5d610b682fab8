// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verifier

import (
	"context"
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/golang-lru/v2"
	"github.com/luxfi/ids"
)

var (
	_ Verifier      = (*Cached)(nil)
	_ Deterministic = (*Cached)(nil)
)

// Cached memoizes the deterministic verdicts of a Verifier, so a cached
// verdict is always the verdict the inner Verifier would return. Proofs the
// inner Verifier reports as non-deterministic are verified on every call.
type Cached struct {
	verifier Verifier
	cache    *lru.Cache[ids.ID, bool]
}

// NewCached wraps [verifier] with an LRU of [size] verdicts
func NewCached(verifier Verifier, size int) (*Cached, error) {
	cache, err := lru.New[ids.ID, bool](size)
	if err != nil {
		return nil, err
	}
	return &Cached{
		verifier: verifier,
		cache:    cache,
	}, nil
}

func (c *Cached) Verify(ctx context.Context, message []byte, proof []byte, registry ids.ID) bool {
	if !IsDeterministic(c.verifier, proof) {
		return c.verifier.Verify(ctx, message, proof, registry)
	}

	key := verdictKey(message, proof, registry)
	if verdict, ok := c.cache.Get(key); ok {
		return verdict
	}

	verdict := c.verifier.Verify(ctx, message, proof, registry)
	c.cache.Add(key, verdict)
	return verdict
}

func (c *Cached) Deterministic(proof []byte) bool {
	return IsDeterministic(c.verifier, proof)
}

// Len returns the number of cached verdicts
func (c *Cached) Len() int {
	return c.cache.Len()
}

func verdictKey(message []byte, proof []byte, registry ids.ID) ids.ID {
	var messageLen [8]byte
	binary.BigEndian.PutUint64(messageLen[:], uint64(len(message)))
	return ids.ID(crypto.Keccak256Hash(registry[:], messageLen[:], message, proof))
}
