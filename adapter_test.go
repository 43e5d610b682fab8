// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"
	"github.com/luxfi/relay"
	"github.com/luxfi/relay/relaymock"
	"github.com/luxfi/relay/state"
	"github.com/luxfi/relay/verifier"
)

var errDestination = errors.New("destination reverted")

type testEnv struct {
	adapter   *relay.Adapter
	store     state.Store
	router    *relay.Router
	metrics   metric.Registry
	key       ed25519.PrivateKey
	authority ids.ID
	registry  ids.ID
}

type storeFactory func(t *testing.T) state.Store

var stores = map[string]storeFactory{
	"memory": func(*testing.T) state.Store {
		return state.NewMemory()
	},
	"sqlite": func(t *testing.T) state.Store {
		s, err := state.OpenSQLite(filepath.Join(t.TempDir(), "relay.db"))
		require.NoError(t, err)
		t.Cleanup(func() {
			require.NoError(t, s.Close())
		})
		return s
	},
}

func newKey(t *testing.T) (ed25519.PrivateKey, ids.ID) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return priv, verifier.Ed25519Registry(pub)
}

func newTestEnv(t *testing.T, store state.Store, v verifier.Verifier, emitter relay.Emitter) *testEnv {
	require := require.New(t)

	key, registry := newKey(t)
	authority := ids.GenerateTestID()
	require.NoError(relay.Initialize(context.Background(), store, authority, registry))

	if v == nil {
		v = verifier.Ed25519{}
	}
	if emitter == nil {
		emitter = relay.NoOpEmitter{}
	}
	metrics := metric.NewRegistry()
	router, err := relay.NewRouter(log.NewNoOpLogger(), metrics, "relay")
	require.NoError(err)
	adapter, err := relay.NewAdapter(log.NewNoOpLogger(), store, v, router, emitter, metrics, "relay")
	require.NoError(err)

	return &testEnv{
		adapter:   adapter,
		store:     store,
		router:    router,
		metrics:   metrics,
		key:       key,
		authority: authority,
		registry:  registry,
	}
}

func (e *testEnv) process(message []byte) (*relay.ExecutionEvent, error) {
	return e.adapter.ProcessMessage(
		context.Background(),
		message,
		verifier.SignEd25519(e.key, message),
		relay.ExecutionContext{},
	)
}

// A valid message is delivered to the destination in its first 32 bytes and
// an event carrying the Keccak-256 identifier is emitted.
func TestProcessMessageDelivers(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctrl := gomock.NewController(t)

			emitter := relaymock.NewEmitter(ctrl)
			env := newTestEnv(t, newStore(t), nil, emitter)

			destination := relaymock.NewDestination(ctrl)
			require.NoError(env.router.AddDestination(ids.Empty, destination))

			message := append(make([]byte, 32), 0x01, 0x02)
			messageID := ids.ID(crypto.Keccak256Hash(message))
			accounts := []ids.ID{ids.GenerateTestID()}

			destination.EXPECT().Execute(gomock.Any(), relay.Execution{
				MessageID:   messageID,
				Destination: ids.Empty,
				Payload:     []byte{0x01, 0x02},
				Accounts:    accounts,
			}).Return(nil)
			emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, event relay.ExecutionEvent) error {
					require.Equal(messageID, event.MessageID)
					require.Equal(ids.Empty, event.Destination)
					require.Equal(2, event.PayloadSize)
					return nil
				},
			)

			event, err := env.adapter.ProcessMessage(
				context.Background(),
				message,
				verifier.SignEd25519(env.key, message),
				relay.ExecutionContext{Accounts: accounts},
			)
			require.NoError(err)
			require.Equal(messageID, event.MessageID)

			processed, err := env.adapter.Processed(context.Background(), messageID)
			require.NoError(err)
			require.True(processed)
		})
	}
}

// Resubmitting a processed message is rejected without invoking the
// destination or emitting again.
func TestProcessMessageReplay(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctrl := gomock.NewController(t)

			emitter := relaymock.NewEmitter(ctrl)
			env := newTestEnv(t, newStore(t), nil, emitter)

			destination := relaymock.NewDestination(ctrl)
			require.NoError(env.router.AddDestination(ids.Empty, destination))

			destination.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil).Times(1)
			emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(1)

			message := append(make([]byte, 32), 0x01, 0x02)
			_, err := env.process(message)
			require.NoError(err)

			event, err := env.process(message)
			require.ErrorIs(err, relay.ErrReplay)
			require.Nil(event)
			require.Equal(relay.ErrReplay.Code, relay.Code(err))
		})
	}
}

// Messages shorter than the destination prefix are rejected before the
// verifier or the store are consulted.
func TestProcessMessageMalformed(t *testing.T) {
	for _, size := range []int{0, 1, 10, 31} {
		require := require.New(t)
		ctrl := gomock.NewController(t)

		// no calls are expected on the verifier
		v := relaymock.NewVerifier(ctrl)
		store := state.NewMemory()
		env := newTestEnv(t, store, v, nil)

		message := make([]byte, size)
		_, err := env.adapter.ProcessMessage(
			context.Background(),
			message,
			verifier.SignEd25519(env.key, message),
			relay.ExecutionContext{},
		)
		require.ErrorIs(err, relay.ErrMalformed)
		require.Zero(store.Len())
	}
}

func TestProcessMessageInvalidProof(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t, newStore(t), nil, nil)
			require.NoError(env.router.AddDestination(ids.Empty, relay.TestDestination{
				ExecuteF: func(context.Context, relay.Execution) error {
					require.FailNow("unexpected dispatch")
					return nil
				},
			}))

			otherKey, _ := newKey(t)
			message := relay.NewMessage(ids.Empty, []byte("payload"))
			_, err := env.adapter.ProcessMessage(
				context.Background(),
				message,
				verifier.SignEd25519(otherKey, message),
				relay.ExecutionContext{},
			)
			require.ErrorIs(err, relay.ErrInvalidProof)

			processed, err := env.adapter.Processed(context.Background(), relay.MessageID(message))
			require.NoError(err)
			require.False(processed)
		})
	}
}

// A failed dispatch must leave the message unprocessed so it can be
// resubmitted once the destination recovers.
func TestProcessMessageDispatchFailureRollsBack(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t, newStore(t), nil, nil)
			destinationID := ids.GenerateTestID()

			var fail atomic.Bool
			fail.Store(true)
			var executions atomic.Int32
			require.NoError(env.router.AddDestination(destinationID, relay.TestDestination{
				ExecuteF: func(context.Context, relay.Execution) error {
					executions.Add(1)
					if fail.Load() {
						return errDestination
					}
					return nil
				},
			}))

			message := relay.NewMessage(destinationID, []byte("payload"))
			messageID := relay.MessageID(message)

			_, err := env.process(message)
			require.ErrorIs(err, relay.ErrDispatchFailed)
			require.ErrorIs(err, errDestination)

			processed, err := env.adapter.Processed(context.Background(), messageID)
			require.NoError(err)
			require.False(processed)

			fail.Store(false)
			event, err := env.process(message)
			require.NoError(err)
			require.Equal(messageID, event.MessageID)
			require.Equal(int32(2), executions.Load())

			_, err = env.process(message)
			require.ErrorIs(err, relay.ErrReplay)
			require.Equal(int32(2), executions.Load())
		})
	}
}

func TestProcessMessageUnregisteredDestination(t *testing.T) {
	require := require.New(t)

	store := state.NewMemory()
	env := newTestEnv(t, store, nil, nil)

	_, err := env.process(relay.NewMessage(ids.GenerateTestID(), nil))
	require.ErrorIs(err, relay.ErrDispatchFailed)
	require.ErrorIs(err, relay.ErrUnregisteredDestination)
	require.Zero(store.Len())
}

func TestProcessMessageNotInitialized(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	registry := metric.NewRegistry()
	router, err := relay.NewRouter(log.NewNoOpLogger(), registry, "")
	require.NoError(err)
	adapter, err := relay.NewAdapter(
		log.NewNoOpLogger(),
		state.NewMemory(),
		relaymock.NewVerifier(ctrl),
		router,
		relay.NoOpEmitter{},
		registry,
		"",
	)
	require.NoError(err)

	_, err = adapter.ProcessMessage(context.Background(), make([]byte, 32), nil, relay.ExecutionContext{})
	require.ErrorIs(err, relay.ErrNotInitialized)
	require.ErrorIs(err, state.ErrNotInitialized)

	_, err = adapter.State(context.Background())
	require.ErrorIs(err, relay.ErrNotInitialized)
}

// The message is committed before the event is emitted, so a failing
// emitter does not fail the message.
func TestProcessMessageEmitFailure(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, state.NewMemory(), nil, relay.EmitterFunc(func(context.Context, relay.ExecutionEvent) error {
		return errors.New("hub unavailable")
	}))
	require.NoError(env.router.AddDestination(ids.Empty, relay.NoOpDestination{}))

	message := relay.NewMessage(ids.Empty, []byte("payload"))
	_, err := env.process(message)
	require.NoError(err)

	processed, err := env.adapter.Processed(context.Background(), relay.MessageID(message))
	require.NoError(err)
	require.True(processed)
}

// Of any number of concurrent submissions of the same message exactly one
// completes.
func TestProcessMessageConcurrentSubmissions(t *testing.T) {
	const submissions = 16

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			env := newTestEnv(t, newStore(t), nil, nil)
			var executions atomic.Int32
			require.NoError(env.router.AddDestination(ids.Empty, relay.TestDestination{
				ExecuteF: func(context.Context, relay.Execution) error {
					executions.Add(1)
					return nil
				},
			}))

			message := relay.NewMessage(ids.Empty, []byte("payload"))
			proof := verifier.SignEd25519(env.key, message)

			var (
				completed atomic.Int32
				replayed  atomic.Int32
				eg        errgroup.Group
			)
			for range submissions {
				eg.Go(func() error {
					_, err := env.adapter.ProcessMessage(context.Background(), message, proof, relay.ExecutionContext{})
					switch {
					case err == nil:
						completed.Add(1)
					case errors.Is(err, relay.ErrReplay):
						replayed.Add(1)
					default:
						return err
					}
					return nil
				})
			}
			require.NoError(eg.Wait())
			require.Equal(int32(1), completed.Load())
			require.Equal(int32(submissions-1), replayed.Load())
			require.Equal(int32(1), executions.Load())
		})
	}
}

func TestSetRegistry(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			env := newTestEnv(t, newStore(t), nil, nil)
			newRegistry := ids.GenerateTestID()

			err := env.adapter.SetRegistry(ctx, ids.GenerateTestID(), newRegistry)
			require.ErrorIs(err, relay.ErrUnauthorized)

			adapterState, err := env.adapter.State(ctx)
			require.NoError(err)
			require.Equal(env.registry, adapterState.Registry)
			require.Equal(uint64(0), adapterState.Version)

			require.NoError(env.adapter.SetRegistry(ctx, env.authority, newRegistry))

			adapterState, err = env.adapter.State(ctx)
			require.NoError(err)
			require.Equal(state.AdapterState{
				Authority: env.authority,
				Registry:  newRegistry,
				Version:   1,
			}, adapterState)
		})
	}
}

func TestCompareAndSetRegistry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t, state.NewMemory(), nil, nil)
	first := ids.GenerateTestID()
	second := ids.GenerateTestID()

	require.NoError(env.adapter.CompareAndSetRegistry(ctx, env.authority, first, 0))

	// replaying the same versioned update fails
	err := env.adapter.CompareAndSetRegistry(ctx, env.authority, second, 0)
	require.ErrorIs(err, relay.ErrStaleVersion)

	// authorization is checked first
	err = env.adapter.CompareAndSetRegistry(ctx, ids.GenerateTestID(), second, 1)
	require.ErrorIs(err, relay.ErrUnauthorized)

	require.NoError(env.adapter.CompareAndSetRegistry(ctx, env.authority, second, 1))

	adapterState, err := env.adapter.State(ctx)
	require.NoError(err)
	require.Equal(second, adapterState.Registry)
	require.Equal(uint64(2), adapterState.Version)
}

// Proofs are verified against the stored registry, so rotating the registry
// revokes the previous signer.
func TestSetRegistryRotatesTrust(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	env := newTestEnv(t, state.NewMemory(), nil, nil)
	require.NoError(env.router.AddDestination(ids.Empty, relay.NoOpDestination{}))

	rotatedKey, newRegistry := newKey(t)
	require.NoError(env.adapter.SetRegistry(ctx, env.authority, newRegistry))

	message := relay.NewMessage(ids.Empty, []byte("payload"))
	_, err := env.process(message)
	require.ErrorIs(err, relay.ErrInvalidProof)

	_, err = env.adapter.ProcessMessage(ctx, message, verifier.SignEd25519(rotatedKey, message), relay.ExecutionContext{})
	require.NoError(err)
}

func TestInitializeOnce(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	store := state.NewMemory()
	require.ErrorIs(relay.Initialize(ctx, store, ids.Empty, ids.GenerateTestID()), state.ErrEmptyAuthority)
	require.NoError(relay.Initialize(ctx, store, ids.GenerateTestID(), ids.GenerateTestID()))
	require.ErrorIs(relay.Initialize(ctx, store, ids.GenerateTestID(), ids.GenerateTestID()), state.ErrAlreadyInitialized)
}

func TestAdapterMetrics(t *testing.T) {
	require := require.New(t)

	env := newTestEnv(t, state.NewMemory(), nil, nil)
	env.router.SetFallback(relay.NoOpDestination{})

	message := relay.NewMessage(ids.GenerateTestID(), []byte("payload"))
	_, err := env.process(message)
	require.NoError(err)
	_, err = env.process(message)
	require.ErrorIs(err, relay.ErrReplay)

	families, err := env.metrics.Gather()
	require.NoError(err)
	outcomes := make(map[string]float64)
	for _, family := range families {
		if family.GetName() != "relay_messages" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				outcomes[label.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(map[string]float64{
		"completed": 1,
		"replay":    1,
	}, outcomes)
}
