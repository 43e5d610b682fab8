// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verifier

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/luxfi/ids"
)

const addressOffset = ids.IDLen - common.AddressLength

var _ Verifier = (*Secp256k1)(nil)

// Secp256k1 verifies recoverable secp256k1 signatures over the Keccak-256
// digest of the message, as produced by EVM source chains. The registry holds
// the signer's 20 byte address right-aligned in 32 bytes.
type Secp256k1 struct{}

func (Secp256k1) Verify(_ context.Context, message []byte, proof []byte, registry ids.ID) bool {
	if len(proof) != crypto.SignatureLength {
		return false
	}
	// The leading bytes of an address registry are always zero.
	for _, b := range registry[:addressOffset] {
		if b != 0 {
			return false
		}
	}

	pub, err := crypto.SigToPub(crypto.Keccak256(message), proof)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == common.BytesToAddress(registry[addressOffset:])
}

// SignSecp256k1 returns a Secp256k1 proof for [message]
func SignSecp256k1(key *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(message), key)
}

// AddressRegistry returns the registry identity that trusts [address]
func AddressRegistry(address common.Address) ids.ID {
	var registry ids.ID
	copy(registry[addressOffset:], address[:])
	return registry
}
