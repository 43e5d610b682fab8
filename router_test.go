// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/relay"
	"github.com/luxfi/relay/relaymock"
)

func newRouter(t *testing.T, registerer metric.Registerer, namespace string) *relay.Router {
	router, err := relay.NewRouter(log.NewNoOpLogger(), registerer, namespace)
	require.NoError(t, err)
	return router
}

func TestRouterAddDestination(t *testing.T) {
	require := require.New(t)

	router := newRouter(t, metric.NewRegistry(), "")
	destinationID := ids.GenerateTestID()

	require.NoError(router.AddDestination(destinationID, relay.NoOpDestination{}))
	require.ErrorIs(router.AddDestination(destinationID, relay.NoOpDestination{}), relay.ErrExistingDestination)
}

func TestRouterDispatch(t *testing.T) {
	var (
		registered   = ids.GenerateTestID()
		unregistered = ids.GenerateTestID()
	)

	tests := []struct {
		name        string
		destination ids.ID
		fallback    bool
		setup       func(destination, fallback *relaymock.Destination)
		wantErr     error
	}{
		{
			name:        "registered destination",
			destination: registered,
			setup: func(destination, _ *relaymock.Destination) {
				destination.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:        "destination failure",
			destination: registered,
			setup: func(destination, _ *relaymock.Destination) {
				destination.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(errDestination)
			},
			wantErr: errDestination,
		},
		{
			name:        "unregistered destination",
			destination: unregistered,
			setup:       func(*relaymock.Destination, *relaymock.Destination) {},
			wantErr:     relay.ErrUnregisteredDestination,
		},
		{
			name:        "fallback",
			destination: unregistered,
			fallback:    true,
			setup: func(_, fallback *relaymock.Destination) {
				fallback.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:        "registered destination takes precedence over fallback",
			destination: registered,
			fallback:    true,
			setup: func(destination, _ *relaymock.Destination) {
				destination.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			ctrl := gomock.NewController(t)

			destination := relaymock.NewDestination(ctrl)
			fallback := relaymock.NewDestination(ctrl)
			tt.setup(destination, fallback)

			router := newRouter(t, metric.NewRegistry(), "")
			require.NoError(router.AddDestination(registered, destination))
			if tt.fallback {
				router.SetFallback(fallback)
			}

			err := router.Dispatch(context.Background(), relay.Execution{
				MessageID:   ids.GenerateTestID(),
				Destination: tt.destination,
				Payload:     []byte("payload"),
			})
			require.ErrorIs(err, tt.wantErr)
			if tt.wantErr != nil {
				require.ErrorIs(err, relay.ErrDispatchFailed)
			}
		})
	}
}

func TestRouterMetrics(t *testing.T) {
	require := require.New(t)

	registry := metric.NewRegistry()
	router := newRouter(t, registry, "relay")
	router.SetFallback(relay.NoOpDestination{})

	require.NoError(router.Dispatch(context.Background(), relay.Execution{
		MessageID:   ids.GenerateTestID(),
		Destination: ids.GenerateTestID(),
	}))

	families, err := registry.Gather()
	require.NoError(err)
	names := make([]string, 0, len(families))
	for _, family := range families {
		names = append(names, family.GetName())
	}
	require.Contains(names, "relay_dispatch_count")
	require.Contains(names, "relay_dispatch_time")

	_, err = relay.NewRouter(log.NewNoOpLogger(), registry, "relay")
	require.Error(err)
}
