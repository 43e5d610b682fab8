// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package redisbus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/crypto/bls/signer/localsigner"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/relay/redisbus"
	"github.com/luxfi/relay/verifier"
)

func TestValidatorSets(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	sets := redisbus.NewValidatorSets(newTestRedis(t), "relay:validators:")
	registry := ids.GenerateTestID()

	_, err := sets.GetValidatorSet(ctx, registry)
	require.ErrorIs(err, redisbus.ErrUnknownValidatorSet)

	var (
		signers    []bls.Signer
		validators []verifier.Validator
	)
	for _, weight := range []uint64{1, 2} {
		signer, err := localsigner.New()
		require.NoError(err)
		signers = append(signers, signer)
		validators = append(validators, verifier.Validator{
			PublicKey: signer.PublicKey(),
			Weight:    weight,
		})
	}
	require.NoError(sets.SetValidatorSet(ctx, registry, validators))

	got, err := sets.GetValidatorSet(ctx, registry)
	require.NoError(err)
	require.Len(got, 2)
	for i := range validators {
		require.Equal(validators[i].Weight, got[i].Weight)
		require.Equal(
			bls.PublicKeyToCompressedBytes(validators[i].PublicKey),
			bls.PublicKeyToCompressedBytes(got[i].PublicKey),
		)
	}

	// the stored set backs quorum verification
	quorum, err := verifier.NewQuorum(log.NewNoOpLogger(), sets, 2, 3)
	require.NoError(err)
	message := []byte("message")
	signature, err := signers[1].Sign(message)
	require.NoError(err)
	require.True(quorum.Verify(ctx, message, verifier.EncodeQuorumProof([]int{1}, signature), registry))

	// replacing the set drops the previous validators
	require.NoError(sets.SetValidatorSet(ctx, registry, validators[:1]))
	got, err = sets.GetValidatorSet(ctx, registry)
	require.NoError(err)
	require.Len(got, 1)
	require.False(quorum.Verify(ctx, message, verifier.EncodeQuorumProof([]int{1}, signature), registry))
}

func TestParseValidator(t *testing.T) {
	tests := []struct {
		name  string
		entry string
	}{
		{
			name:  "missing weight",
			entry: "abcd",
		},
		{
			name:  "invalid hex",
			entry: "zz:1",
		},
		{
			name:  "invalid public key",
			entry: "abcd:1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := redisbus.ParseValidator(tt.entry)
			require.Error(t, err)
		})
	}
}
