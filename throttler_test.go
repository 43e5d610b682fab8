// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
)

func TestThrottler(t *testing.T) {
	require := require.New(t)

	throttler := NewThrottler[ids.ID](time.Hour, 5)
	first := ids.GenerateTestID()
	second := ids.GenerateTestID()

	for range 5 {
		require.True(throttler.Handle(first))
	}
	require.False(throttler.Handle(first))

	// limits are tracked per key
	require.True(throttler.Handle(second))
}

func TestThrottledDestination(t *testing.T) {
	require := require.New(t)

	executions := 0
	destination := NewThrottledDestination(
		TestDestination{
			ExecuteF: func(context.Context, Execution) error {
				executions++
				return nil
			},
		},
		NewThrottler[ids.ID](time.Hour, 1),
		log.NewNoOpLogger(),
	)

	execution := Execution{
		MessageID:   ids.GenerateTestID(),
		Destination: ids.GenerateTestID(),
	}
	require.NoError(destination.Execute(context.Background(), execution))
	require.ErrorIs(destination.Execute(context.Background(), execution), ErrThrottled)
	require.Equal(1, executions)
}
