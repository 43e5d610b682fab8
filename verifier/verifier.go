// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package verifier implements proof verification for relayed messages.
//
// A Verifier is a predicate over (message, proof, registry). It must return
// the same verdict for the same arguments on every node, and it never fails:
// any malformed or unverifiable proof is simply invalid. Verifiers that also
// read external state, such as a stored validator set, report it through
// Deterministic.
package verifier

import (
	"context"

	"github.com/luxfi/ids"
)

var (
	_ Verifier = (Func)(nil)
	_ Verifier = (*AcceptAll)(nil)
)

// Verifier verifies that [proof] attests [message] originated from the
// source trusted by [registry].
type Verifier interface {
	Verify(ctx context.Context, message []byte, proof []byte, registry ids.ID) bool
}

// Deterministic is implemented by verifiers whose verdict for some proofs
// depends on more than the message, proof and registry. Verifiers that do not
// implement it are assumed to be deterministic for every proof.
type Deterministic interface {
	// Deterministic reports whether the verdict for [proof] can be reused for
	// the same message and registry.
	Deterministic(proof []byte) bool
}

// IsDeterministic reports whether [verifier]'s verdict for [proof] can be
// reused
func IsDeterministic(verifier Verifier, proof []byte) bool {
	d, ok := verifier.(Deterministic)
	return !ok || d.Deterministic(proof)
}

// Func adapts a function to a Verifier
type Func func(ctx context.Context, message []byte, proof []byte, registry ids.ID) bool

func (f Func) Verify(ctx context.Context, message []byte, proof []byte, registry ids.ID) bool {
	return f(ctx, message, proof, registry)
}

// AcceptAll accepts every proof. It performs no verification whatsoever and
// must only be used in development networks and tests.
type AcceptAll struct{}

func (AcceptAll) Verify(context.Context, []byte, []byte, ids.ID) bool {
	return true
}
