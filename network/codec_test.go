// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func TestProcessRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *ProcessRequest
	}{
		{
			name: "accounts",
			req: &ProcessRequest{
				Message:  []byte("message"),
				Proof:    []byte("proof"),
				Accounts: []ids.ID{ids.GenerateTestID(), ids.GenerateTestID()},
			},
		},
		{
			name: "no accounts",
			req: &ProcessRequest{
				Message: []byte("message"),
				Proof:   []byte("proof"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			b, err := MarshalProcessRequest(tt.req)
			require.NoError(err)
			got, err := UnmarshalProcessRequest(b)
			require.NoError(err)
			require.Equal(tt.req, got)
		})
	}
}

func TestUnmarshalProcessRequestErrors(t *testing.T) {
	valid, err := MarshalProcessRequest(&ProcessRequest{
		Message:  []byte("message"),
		Proof:    []byte("proof"),
		Accounts: []ids.ID{ids.GenerateTestID()},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{
			name:    "empty",
			wantErr: errShortBuffer,
		},
		{
			name:    "truncated account",
			data:    valid[:len(valid)-1],
			wantErr: errShortBuffer,
		},
		{
			name:    "message length beyond buffer",
			data:    []byte{0xff, 0xff, 0xff, 0xff, 0x00},
			wantErr: errShortBuffer,
		},
		{
			name:    "trailing bytes",
			data:    append(append([]byte(nil), valid...), 0x00),
			wantErr: errTrailingBytes,
		},
		{
			name: "too many accounts",
			data: []byte{
				0, 0, 0, 0,
				0, 0, 0, 0,
				0xff, 0xff, 0xff, 0xff,
			},
			wantErr: errTooManyAccounts,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalProcessRequest(tt.data)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMarshalProcessRequestTooManyAccounts(t *testing.T) {
	_, err := MarshalProcessRequest(&ProcessRequest{
		Accounts: make([]ids.ID, maxAccounts+1),
	})
	require.ErrorIs(t, err, errTooManyAccounts)
}

func TestProcessResponse(t *testing.T) {
	require := require.New(t)

	resp := &ProcessResponse{MessageID: ids.GenerateTestID()}
	got, err := UnmarshalProcessResponse(MarshalProcessResponse(resp))
	require.NoError(err)
	require.Equal(resp, got)

	_, err = UnmarshalProcessResponse(resp.MessageID[:ids.IDLen-1])
	require.ErrorIs(err, errShortBuffer)
}

func TestSetRegistryRequest(t *testing.T) {
	require := require.New(t)

	req := &SetRegistryRequest{
		Registry:  ids.GenerateTestID(),
		Version:   7,
		Caller:    ids.GenerateTestID(),
		Signature: []byte("signature"),
	}
	b, err := MarshalSetRegistryRequest(req)
	require.NoError(err)
	got, err := UnmarshalSetRegistryRequest(b)
	require.NoError(err)
	require.Equal(req, got)

	_, err = UnmarshalSetRegistryRequest(b[:len(b)-1])
	require.ErrorIs(err, errShortBuffer)
}

func TestRegistryUpdateBytes(t *testing.T) {
	require := require.New(t)

	registry := ids.GenerateTestID()
	require.NotEqual(RegistryUpdateBytes(registry, 0), RegistryUpdateBytes(registry, 1))
	require.NotEqual(RegistryUpdateBytes(registry, 0), RegistryUpdateBytes(ids.GenerateTestID(), 0))
	require.Equal(registryUpdateDomain, RegistryUpdateBytes(registry, 0)[:len(registryUpdateDomain)])
}
