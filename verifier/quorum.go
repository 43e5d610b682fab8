// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verifier

import (
	"context"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

const bitSetLenSize = 2

var (
	ErrInvalidQuorum = errors.New("quorum numerator must be positive and not exceed the denominator")

	_ Verifier      = (*Quorum)(nil)
	_ Deterministic = (*Quorum)(nil)
	_ ValidatorSets = (ValidatorSetsFunc)(nil)
)

// Validator is a member of a relaying validator set
type Validator struct {
	PublicKey *bls.PublicKey
	Weight    uint64
}

// ValidatorSets resolves the validator set identified by a registry. The
// returned ordering defines the signer bitset indices and must be identical
// on every node.
type ValidatorSets interface {
	GetValidatorSet(ctx context.Context, registry ids.ID) ([]Validator, error)
}

type ValidatorSetsFunc func(ctx context.Context, registry ids.ID) ([]Validator, error)

func (f ValidatorSetsFunc) GetValidatorSet(ctx context.Context, registry ids.ID) ([]Validator, error) {
	return f(ctx, registry)
}

// Quorum verifies BLS multi-signatures by a weighted threshold of a validator
// set. A proof is encoded as
//
//	bitSetLen (uint16) || signer bitset (big-endian) || aggregate signature
//
// where bit i of the bitset marks validator i as a signer.
type Quorum struct {
	log         log.Logger
	validators  ValidatorSets
	numerator   uint64
	denominator uint64
}

// NewQuorum returns a verifier requiring signers holding at least
// [numerator]/[denominator] of the validator set's weight.
func NewQuorum(
	log log.Logger,
	validators ValidatorSets,
	numerator uint64,
	denominator uint64,
) (*Quorum, error) {
	if numerator == 0 || numerator > denominator {
		return nil, ErrInvalidQuorum
	}
	return &Quorum{
		log:         log,
		validators:  validators,
		numerator:   numerator,
		denominator: denominator,
	}, nil
}

func (q *Quorum) Verify(ctx context.Context, message []byte, proof []byte, registry ids.ID) bool {
	signers, sigBytes, ok := parseQuorumProof(proof)
	if !ok {
		return false
	}

	validators, err := q.validators.GetValidatorSet(ctx, registry)
	if err != nil {
		q.log.Debug("failed to get validator set",
			log.Stringer("registry", registry),
			log.Err(err),
		)
		return false
	}
	if signers.BitLen() > len(validators) {
		return false
	}

	var (
		totalWeight  = new(big.Int)
		signedWeight = new(big.Int)
		publicKeys   = make([]*bls.PublicKey, 0, len(validators))
	)
	for i, vdr := range validators {
		weight := new(big.Int).SetUint64(vdr.Weight)
		totalWeight.Add(totalWeight, weight)
		if signers.Bit(i) == 0 {
			continue
		}
		if vdr.PublicKey == nil {
			return false
		}
		signedWeight.Add(signedWeight, weight)
		publicKeys = append(publicKeys, vdr.PublicKey)
	}
	if len(publicKeys) == 0 {
		return false
	}

	// signed/total >= numerator/denominator
	lhs := signedWeight.Mul(signedWeight, new(big.Int).SetUint64(q.denominator))
	rhs := totalWeight.Mul(totalWeight, new(big.Int).SetUint64(q.numerator))
	if lhs.Cmp(rhs) < 0 {
		return false
	}

	signature, err := bls.SignatureFromBytes(sigBytes)
	if err != nil {
		return false
	}
	aggregateKey, err := bls.AggregatePublicKeys(publicKeys)
	if err != nil {
		return false
	}
	return bls.Verify(aggregateKey, signature, message)
}

// Deterministic returns false. Verdicts depend on the validator set stored for
// the registry, which can be replaced or be temporarily unavailable.
func (*Quorum) Deterministic([]byte) bool {
	return false
}

func parseQuorumProof(proof []byte) (*big.Int, []byte, bool) {
	if len(proof) < bitSetLenSize {
		return nil, nil, false
	}
	bitSetLen := int(binary.BigEndian.Uint16(proof))
	proof = proof[bitSetLenSize:]
	if bitSetLen == 0 || len(proof) <= bitSetLen {
		return nil, nil, false
	}
	bitSetBytes := proof[:bitSetLen]
	// Only the minimal encoding is accepted so that each signer set has
	// exactly one proof.
	if bitSetBytes[0] == 0 {
		return nil, nil, false
	}
	return new(big.Int).SetBytes(bitSetBytes), proof[bitSetLen:], true
}

// EncodeQuorumProof builds a Quorum proof from the indices of the signing
// validators and their aggregated signature.
func EncodeQuorumProof(signers []int, signature *bls.Signature) []byte {
	bitSet := new(big.Int)
	for _, i := range signers {
		bitSet.SetBit(bitSet, i, 1)
	}
	bitSetBytes := bitSet.Bytes()
	sigBytes := bls.SignatureToBytes(signature)

	proof := make([]byte, bitSetLenSize+len(bitSetBytes)+len(sigBytes))
	binary.BigEndian.PutUint16(proof, uint16(len(bitSetBytes)))
	copy(proof[bitSetLenSize:], bitSetBytes)
	copy(proof[bitSetLenSize+len(bitSetBytes):], sigBytes)
	return proof
}
