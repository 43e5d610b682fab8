// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redisbus

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/ids"
	"github.com/luxfi/relay/verifier"
)

var (
	_ verifier.ValidatorSets = (*ValidatorSets)(nil)

	ErrUnknownValidatorSet = errors.New("unknown validator set")
	errInvalidValidator    = errors.New("invalid validator entry")
)

// ValidatorSets stores the BLS validator set behind each quorum registry as
// a Redis list of "<compressed public key hex>:<weight>" entries, in signer
// bitset order.
type ValidatorSets struct {
	client redis.UniversalClient
	prefix string
}

func NewValidatorSets(client redis.UniversalClient, prefix string) *ValidatorSets {
	return &ValidatorSets{
		client: client,
		prefix: prefix,
	}
}

func (v *ValidatorSets) key(registry ids.ID) string {
	return v.prefix + registry.String()
}

func (v *ValidatorSets) GetValidatorSet(ctx context.Context, registry ids.ID) ([]verifier.Validator, error) {
	entries, err := v.client.LRange(ctx, v.key(registry), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownValidatorSet, registry)
	}

	validators := make([]verifier.Validator, len(entries))
	for i, entry := range entries {
		validator, err := ParseValidator(entry)
		if err != nil {
			return nil, fmt.Errorf("validator %d of %s: %w", i, registry, err)
		}
		validators[i] = validator
	}
	return validators, nil
}

// SetValidatorSet replaces the validator set behind [registry]
func (v *ValidatorSets) SetValidatorSet(ctx context.Context, registry ids.ID, validators []verifier.Validator) error {
	entries := make([]interface{}, len(validators))
	for i, validator := range validators {
		entries[i] = FormatValidator(validator)
	}

	key := v.key(registry)
	_, err := v.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(entries) > 0 {
			pipe.RPush(ctx, key, entries...)
		}
		return nil
	})
	return err
}

// FormatValidator encodes [validator] as stored by ValidatorSets
func FormatValidator(validator verifier.Validator) string {
	return hex.EncodeToString(bls.PublicKeyToCompressedBytes(validator.PublicKey)) + ":" + strconv.FormatUint(validator.Weight, 10)
}

// ParseValidator decodes an entry produced by FormatValidator
func ParseValidator(entry string) (verifier.Validator, error) {
	keyHex, weightStr, ok := strings.Cut(entry, ":")
	if !ok {
		return verifier.Validator{}, fmt.Errorf("%w: %q", errInvalidValidator, entry)
	}
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return verifier.Validator{}, fmt.Errorf("%w: %w", errInvalidValidator, err)
	}
	publicKey, err := bls.PublicKeyFromCompressedBytes(keyBytes)
	if err != nil {
		return verifier.Validator{}, fmt.Errorf("%w: %w", errInvalidValidator, err)
	}
	weight, err := strconv.ParseUint(weightStr, 10, 64)
	if err != nil {
		return verifier.Validator{}, fmt.Errorf("%w: %w", errInvalidValidator, err)
	}
	return verifier.Validator{
		PublicKey: publicKey,
		Weight:    weight,
	}, nil
}
