// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package verifier

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func newEd25519Key(t *testing.T) (ed25519.PrivateKey, ids.ID) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, Ed25519Registry(pub)
}

func TestEd25519(t *testing.T) {
	key, registry := newEd25519Key(t)
	_, otherRegistry := newEd25519Key(t)

	message := []byte("message")
	signature := SignEd25519(key, message)

	tests := []struct {
		name     string
		message  []byte
		proof    []byte
		registry ids.ID
		want     bool
	}{
		{
			name:     "valid",
			message:  message,
			proof:    signature,
			registry: registry,
			want:     true,
		},
		{
			name:     "wrong registry",
			message:  message,
			proof:    signature,
			registry: otherRegistry,
		},
		{
			name:     "empty registry",
			message:  message,
			proof:    signature,
			registry: ids.Empty,
		},
		{
			name:     "different message",
			message:  []byte("other"),
			proof:    signature,
			registry: registry,
		},
		{
			name:     "truncated proof",
			message:  message,
			proof:    signature[:ed25519.SignatureSize-1],
			registry: registry,
		},
		{
			name:     "nil proof",
			message:  message,
			registry: registry,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Ed25519{}.Verify(context.Background(), tt.message, tt.proof, tt.registry))
		})
	}
}

func TestSecp256k1(t *testing.T) {
	r := require.New(t)

	key, err := crypto.GenerateKey()
	r.NoError(err)
	registry := AddressRegistry(crypto.PubkeyToAddress(key.PublicKey))

	otherKey, err := crypto.GenerateKey()
	r.NoError(err)
	otherRegistry := AddressRegistry(crypto.PubkeyToAddress(otherKey.PublicKey))

	message := []byte("message")
	signature, err := SignSecp256k1(key, message)
	r.NoError(err)

	dirtyRegistry := registry
	dirtyRegistry[0] = 1

	corrupted := append([]byte(nil), signature...)
	corrupted[crypto.SignatureLength-1] = 7

	tests := []struct {
		name     string
		message  []byte
		proof    []byte
		registry ids.ID
		want     bool
	}{
		{
			name:     "valid",
			message:  message,
			proof:    signature,
			registry: registry,
			want:     true,
		},
		{
			name:     "wrong signer",
			message:  message,
			proof:    signature,
			registry: otherRegistry,
		},
		{
			name:     "non-zero registry prefix",
			message:  message,
			proof:    signature,
			registry: dirtyRegistry,
		},
		{
			name:     "different message",
			message:  []byte("other"),
			proof:    signature,
			registry: registry,
		},
		{
			name:     "invalid recovery id",
			message:  message,
			proof:    corrupted,
			registry: registry,
		},
		{
			name:     "short proof",
			message:  message,
			proof:    signature[:64],
			registry: registry,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			require.Equal(tt.want, Secp256k1{}.Verify(context.Background(), tt.message, tt.proof, tt.registry))
		})
	}
}

func TestMulti(t *testing.T) {
	require := require.New(t)

	key, registry := newEd25519Key(t)
	message := []byte("message")
	signature := SignEd25519(key, message)

	m := NewMulti()
	require.NoError(m.AddScheme(Ed25519Scheme, Ed25519{}))
	require.ErrorIs(m.AddScheme(Ed25519Scheme, Ed25519{}), ErrExistingScheme)

	ctx := context.Background()
	require.True(m.Verify(ctx, message, Encode(Ed25519Scheme, signature), registry))
	require.False(m.Verify(ctx, message, signature, registry))
	require.False(m.Verify(ctx, message, Encode(Secp256k1Scheme, signature), registry))
	require.False(m.Verify(ctx, message, nil, registry))
}

func TestParseScheme(t *testing.T) {
	require := require.New(t)

	for _, s := range []Scheme{Ed25519Scheme, Secp256k1Scheme, QuorumScheme} {
		parsed, err := ParseScheme(s.String())
		require.NoError(err)
		require.Equal(s, parsed)
	}
	_, err := ParseScheme("rsa")
	require.Error(err)
	require.Equal("scheme(9)", Scheme(9).String())
}

func TestCached(t *testing.T) {
	require := require.New(t)

	calls := 0
	inner := Func(func(_ context.Context, message []byte, _ []byte, _ ids.ID) bool {
		calls++
		return len(message) > 0
	})
	cached, err := NewCached(inner, 2)
	require.NoError(err)

	ctx := context.Background()
	registry := ids.GenerateTestID()

	require.True(cached.Verify(ctx, []byte("a"), nil, registry))
	require.True(cached.Verify(ctx, []byte("a"), nil, registry))
	require.Equal(1, calls)

	require.False(cached.Verify(ctx, nil, nil, registry))
	require.False(cached.Verify(ctx, nil, nil, registry))
	require.Equal(2, calls)

	// a different registry is a different verdict
	require.True(cached.Verify(ctx, []byte("a"), nil, ids.GenerateTestID()))
	require.Equal(3, calls)
	require.Equal(2, cached.Len())
}

func TestVerdictKeyBoundaries(t *testing.T) {
	registry := ids.GenerateTestID()
	require.NotEqual(t,
		verdictKey([]byte("ab"), []byte("c"), registry),
		verdictKey([]byte("a"), []byte("bc"), registry),
	)
}

func TestAcceptAll(t *testing.T) {
	require.True(t, AcceptAll{}.Verify(context.Background(), nil, nil, ids.Empty))
}
