// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/luxfi/ids"
)

const (
	lenSize     = 4
	versionSize = 8

	// maxAccounts bounds the allocation made for a decoded account list
	maxAccounts = 256
)

// registryUpdateDomain separates registry update signatures from any other
// message the authority key may sign
var registryUpdateDomain = []byte("relay.set_registry")

var (
	errShortBuffer     = errors.New("buffer too short")
	errTrailingBytes   = errors.New("trailing bytes")
	errTooManyAccounts = errors.New("too many accounts")
	errFieldTooLarge   = errors.New("field too large")
)

// ProcessRequest submits a relayed message for processing
type ProcessRequest struct {
	Message  []byte
	Proof    []byte
	Accounts []ids.ID
}

// ProcessResponse acknowledges a processed message
type ProcessResponse struct {
	MessageID ids.ID
}

// SetRegistryRequest asks the adapter to replace its registry. [Signature]
// is the caller's ed25519 signature over RegistryUpdateBytes, and [Caller]
// is the caller's public key.
type SetRegistryRequest struct {
	Registry  ids.ID
	Version   uint64
	Caller    ids.ID
	Signature []byte
}

// MarshalProcessRequest encodes [req] as
// msgLen(4) + msg + proofLen(4) + proof + numAccounts(4) + accounts
func MarshalProcessRequest(req *ProcessRequest) ([]byte, error) {
	if uint64(len(req.Message)) > math.MaxUint32 || uint64(len(req.Proof)) > math.MaxUint32 {
		return nil, errFieldTooLarge
	}
	if len(req.Accounts) > maxAccounts {
		return nil, fmt.Errorf("%w: %d > %d", errTooManyAccounts, len(req.Accounts), maxAccounts)
	}

	size := lenSize + len(req.Message) + lenSize + len(req.Proof) + lenSize + len(req.Accounts)*ids.IDLen
	buf := make([]byte, 0, size)
	buf = appendBytes(buf, req.Message)
	buf = appendBytes(buf, req.Proof)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(req.Accounts)))
	for _, account := range req.Accounts {
		buf = append(buf, account[:]...)
	}
	return buf, nil
}

// UnmarshalProcessRequest decodes bytes produced by MarshalProcessRequest.
// The returned slices alias [data].
func UnmarshalProcessRequest(data []byte) (*ProcessRequest, error) {
	r := reader{data: data}
	req := &ProcessRequest{
		Message: r.bytes(),
		Proof:   r.bytes(),
	}
	numAccounts := r.uint32()
	if r.err == nil && numAccounts > maxAccounts {
		return nil, fmt.Errorf("%w: %d > %d", errTooManyAccounts, numAccounts, maxAccounts)
	}
	if numAccounts > 0 {
		req.Accounts = make([]ids.ID, 0, numAccounts)
	}
	for i := uint32(0); i < numAccounts && r.err == nil; i++ {
		req.Accounts = append(req.Accounts, r.id())
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return req, nil
}

// MarshalProcessResponse encodes [resp] as messageID(32)
func MarshalProcessResponse(resp *ProcessResponse) []byte {
	return append([]byte(nil), resp.MessageID[:]...)
}

// UnmarshalProcessResponse decodes bytes produced by MarshalProcessResponse
func UnmarshalProcessResponse(data []byte) (*ProcessResponse, error) {
	r := reader{data: data}
	resp := &ProcessResponse{
		MessageID: r.id(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return resp, nil
}

// MarshalSetRegistryRequest encodes [req] as
// registry(32) + version(8) + caller(32) + sigLen(4) + sig
func MarshalSetRegistryRequest(req *SetRegistryRequest) ([]byte, error) {
	if uint64(len(req.Signature)) > math.MaxUint32 {
		return nil, errFieldTooLarge
	}

	buf := make([]byte, 0, 2*ids.IDLen+versionSize+lenSize+len(req.Signature))
	buf = append(buf, req.Registry[:]...)
	buf = binary.BigEndian.AppendUint64(buf, req.Version)
	buf = append(buf, req.Caller[:]...)
	buf = appendBytes(buf, req.Signature)
	return buf, nil
}

// UnmarshalSetRegistryRequest decodes bytes produced by
// MarshalSetRegistryRequest. The returned signature aliases [data].
func UnmarshalSetRegistryRequest(data []byte) (*SetRegistryRequest, error) {
	r := reader{data: data}
	req := &SetRegistryRequest{
		Registry:  r.id(),
		Version:   r.uint64(),
		Caller:    r.id(),
		Signature: r.bytes(),
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return req, nil
}

// RegistryUpdateBytes returns the bytes an authority signs to move the
// registry from configuration [version] to [registry].
func RegistryUpdateBytes(registry ids.ID, version uint64) []byte {
	buf := make([]byte, 0, len(registryUpdateDomain)+ids.IDLen+versionSize)
	buf = append(buf, registryUpdateDomain...)
	buf = append(buf, registry[:]...)
	return binary.BigEndian.AppendUint64(buf, version)
}

func appendBytes(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// reader decodes fields in order, latching the first error
type reader struct {
	data []byte
	err  error
}

func (r *reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.data) < n {
		r.err = fmt.Errorf("%w: need %d bytes but have %d", errShortBuffer, n, len(r.data))
		return nil
	}
	b := r.data[:n]
	r.data = r.data[n:]
	return b
}

func (r *reader) uint32() uint32 {
	b := r.next(lenSize)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64() uint64 {
	b := r.next(versionSize)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err != nil {
		return nil
	}
	if uint64(n) > uint64(len(r.data)) {
		r.err = fmt.Errorf("%w: need %d bytes but have %d", errShortBuffer, n, len(r.data))
		return nil
	}
	return r.next(int(n))
}

func (r *reader) id() ids.ID {
	var id ids.ID
	copy(id[:], r.next(ids.IDLen))
	return id
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.data) != 0 {
		return fmt.Errorf("%w: %d", errTrailingBytes, len(r.data))
	}
	return nil
}
