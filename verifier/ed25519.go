// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verifier

import (
	"context"
	"crypto/ed25519"

	"github.com/luxfi/ids"
)

var _ Verifier = (*Ed25519)(nil)

// Ed25519 verifies proofs that are a single signature over the message by
// the key stored as the registry. This is the attestation format of
// ed25519-native source chains, whose account identities are the 32 byte
// public keys themselves.
type Ed25519 struct{}

func (Ed25519) Verify(_ context.Context, message []byte, proof []byte, registry ids.ID) bool {
	if len(proof) != ed25519.SignatureSize || registry == ids.Empty {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(registry[:]), message, proof)
}

// SignEd25519 returns an Ed25519 proof for [message]
func SignEd25519(key ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(key, message)
}

// Ed25519Registry returns the registry identity that trusts [key]
func Ed25519Registry(key ed25519.PublicKey) ids.ID {
	var registry ids.ID
	copy(registry[:], key)
	return registry
}
