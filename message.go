// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/luxfi/ids"
)

// MinMessageLen is the size of the destination prefix every message carries.
const MinMessageLen = ids.IDLen

// MessageID returns the replay key of [message]: the Keccak-256 digest of the
// full message bytes.
func MessageID(message []byte) ids.ID {
	var id ids.ID
	copy(id[:], crypto.Keccak256(message))
	return id
}

// SplitMessage splits [message] into the destination identifier encoded in its
// first 32 bytes and the payload that follows. The returned payload does not
// alias [message].
func SplitMessage(message []byte) (ids.ID, []byte, error) {
	if len(message) < MinMessageLen {
		return ids.Empty, nil, ErrMalformed
	}

	var destination ids.ID
	copy(destination[:], message[:MinMessageLen])

	payload := make([]byte, len(message)-MinMessageLen)
	copy(payload, message[MinMessageLen:])
	return destination, payload, nil
}

// NewMessage is the inverse of SplitMessage.
func NewMessage(destination ids.ID, payload []byte) []byte {
	message := make([]byte, MinMessageLen+len(payload))
	copy(message, destination[:])
	copy(message[MinMessageLen:], payload)
	return message
}
