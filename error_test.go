// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	require := require.New(t)

	cause := errors.New("reverted")
	err := fmt.Errorf("processing: %w", ErrDispatchFailed.wrap(cause))

	require.ErrorIs(err, ErrDispatchFailed)
	require.ErrorIs(err, cause)
	require.NotErrorIs(err, ErrReplay)
	require.Equal(ErrDispatchFailed.Code, Code(err))
	require.Zero(Code(cause))
	require.Zero(Code(nil))

	// wrapping never mutates the sentinel
	require.NoError(ErrDispatchFailed.Err)
}

func TestErrorString(t *testing.T) {
	require := require.New(t)

	require.Equal("relay error 2: message already processed (replay)", ErrReplay.Error())
	require.Equal(
		"relay error 5: dispatch failed: reverted",
		ErrDispatchFailed.wrap(errors.New("reverted")).Error(),
	)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: completedOutcome},
		{err: ErrInvalidProof, want: invalidProofOutcome},
		{err: ErrReplay.wrap(errors.New("seen")), want: replayOutcome},
		{err: ErrMalformed, want: malformedOutcome},
		{err: ErrDispatchFailed, want: dispatchFailedOutcome},
		{err: ErrNotInitialized, want: notInitializedOutcome},
		{err: ErrUnauthorized, want: unauthorizedOutcome},
		{err: ErrStaleVersion, want: staleVersionOutcome},
		{err: errors.New("disk full"), want: errorOutcome},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, outcome(tt.err))
		})
	}
}
