// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/ids"
)

var (
	ErrExistingScheme = errors.New("existing proof scheme")

	_ Verifier      = (*Multi)(nil)
	_ Deterministic = (*Multi)(nil)
)

// Scheme identifies the proof format of a source chain. It is carried as the
// first byte of a proof verified by Multi.
type Scheme byte

const (
	Ed25519Scheme Scheme = iota + 1
	Secp256k1Scheme
	QuorumScheme
)

func (s Scheme) String() string {
	switch s {
	case Ed25519Scheme:
		return "ed25519"
	case Secp256k1Scheme:
		return "secp256k1"
	case QuorumScheme:
		return "quorum"
	default:
		return fmt.Sprintf("scheme(%d)", byte(s))
	}
}

// ParseScheme is the inverse of Scheme.String
func ParseScheme(name string) (Scheme, error) {
	for _, s := range []Scheme{Ed25519Scheme, Secp256k1Scheme, QuorumScheme} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown proof scheme %q", name)
}

// Encode prefixes [proof] with its scheme tag.
func Encode(scheme Scheme, proof []byte) []byte {
	encoded := make([]byte, 1+len(proof))
	encoded[0] = byte(scheme)
	copy(encoded[1:], proof)
	return encoded
}

// Multi verifies proofs produced by any of its registered schemes. A proof
// for an unregistered scheme is invalid.
type Multi struct {
	lock      sync.RWMutex
	verifiers map[Scheme]Verifier
}

func NewMulti() *Multi {
	return &Multi{
		verifiers: make(map[Scheme]Verifier),
	}
}

// AddScheme registers [verifier] for proofs tagged with [scheme]
func (m *Multi) AddScheme(scheme Scheme, verifier Verifier) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if _, ok := m.verifiers[scheme]; ok {
		return fmt.Errorf("failed to register %s: %w", scheme, ErrExistingScheme)
	}
	m.verifiers[scheme] = verifier
	return nil
}

func (m *Multi) Verify(ctx context.Context, message []byte, proof []byte, registry ids.ID) bool {
	verifier, proof, ok := m.parse(proof)
	if !ok {
		return false
	}
	return verifier.Verify(ctx, message, proof, registry)
}

// Deterministic defers to the verifier of the scheme [proof] is tagged with.
// Proofs without a registered scheme are always invalid.
func (m *Multi) Deterministic(proof []byte) bool {
	verifier, proof, ok := m.parse(proof)
	return !ok || IsDeterministic(verifier, proof)
}

// parse returns the verifier for the scheme of [proof] and the untagged proof
func (m *Multi) parse(proof []byte) (Verifier, []byte, bool) {
	if len(proof) == 0 {
		return nil, nil, false
	}

	m.lock.RLock()
	defer m.lock.RUnlock()

	verifier, ok := m.verifiers[Scheme(proof[0])]
	return verifier, proof[1:], ok
}
