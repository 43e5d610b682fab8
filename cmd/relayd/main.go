// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// relayd runs a relay adapter against a Redis host.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/relay"
	"github.com/luxfi/relay/network"
	"github.com/luxfi/relay/redisbus"
	"github.com/luxfi/relay/verifier"
)

const readHeaderTimeout = 5 * time.Second

var (
	errInvalidIDLength   = errors.New("id must be 32 bytes")
	errInvalidSeedLength = errors.New("ed25519 seed must be 32 bytes")
)

func main() {
	config, err := relay.ParseEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCommand(&config).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(config *relay.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "relayd",
		Short:        "Verify, deduplicate and route cross-chain messages",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&config.StoreDriver, "store", config.StoreDriver, "state store driver (memory, sqlite)")
	flags.StringVar(&config.StorePath, "store-path", config.StorePath, "sqlite database path")
	flags.StringVar(&config.RedisURL, "redis-url", config.RedisURL, "redis server url")
	flags.StringSliceVar(&config.Schemes, "schemes", config.Schemes, "accepted proof schemes")
	flags.StringVar(&config.Namespace, "namespace", config.Namespace, "metrics namespace")
	flags.BoolVar(&config.Quiet, "quiet", config.Quiet, "disable logging")

	cmd.AddCommand(
		newInitCommand(config),
		newStatusCommand(config),
		newProcessCommand(config),
		newSubmitCommand(config),
		newSetRegistryCommand(config),
		newSetValidatorsCommand(config),
		newReplayDeadLettersCommand(config),
		newServeCommand(config),
		newRemoteCommand(config),
	)
	return cmd
}

// withNode runs [fn] against a node built from [config]
func withNode(ctx context.Context, config *relay.Config, fn func(*node) error) error {
	n, err := newNode(ctx, *config)
	if err != nil {
		return err
	}
	return errors.Join(fn(n), n.Close())
}

func newInitCommand(config *relay.Config) *cobra.Command {
	var authority, registry string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the adapter configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			authorityID, err := parseID(authority)
			if err != nil {
				return fmt.Errorf("authority: %w", err)
			}
			registryID, err := parseID(registry)
			if err != nil {
				return fmt.Errorf("registry: %w", err)
			}
			return withNode(cmd.Context(), config, func(n *node) error {
				return relay.Initialize(cmd.Context(), n.store, authorityID, registryID)
			})
		},
	}
	cmd.Flags().StringVar(&authority, "authority", "", "identity allowed to change the registry")
	cmd.Flags().StringVar(&registry, "registry", "", "initial trust anchor")
	_ = cmd.MarkFlagRequired("authority")
	_ = cmd.MarkFlagRequired("registry")
	return cmd
}

func newStatusCommand(config *relay.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the adapter configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withNode(cmd.Context(), config, func(n *node) error {
				adapterState, err := n.adapter.State(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, adapterState)
			})
		},
	}
}

type messageFlags struct {
	message  string
	proof    string
	accounts []string
}

func (f *messageFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.message, "message", "", "0x-prefixed message: destination(32) || payload")
	cmd.Flags().StringVar(&f.proof, "proof", "", "0x-prefixed proof")
	cmd.Flags().StringSliceVar(&f.accounts, "accounts", nil, "execution context accounts")
	_ = cmd.MarkFlagRequired("message")
	_ = cmd.MarkFlagRequired("proof")
}

func (f *messageFlags) request() (*network.ProcessRequest, error) {
	message, err := hexutil.Decode(f.message)
	if err != nil {
		return nil, fmt.Errorf("message: %w", err)
	}
	proof, err := hexutil.Decode(f.proof)
	if err != nil {
		return nil, fmt.Errorf("proof: %w", err)
	}
	accounts := make([]ids.ID, len(f.accounts))
	for i, account := range f.accounts {
		accounts[i], err = parseID(account)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
	}
	return &network.ProcessRequest{
		Message:  message,
		Proof:    proof,
		Accounts: accounts,
	}, nil
}

func newProcessCommand(config *relay.Config) *cobra.Command {
	var f messageFlags
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Verify and execute a message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			return withNode(cmd.Context(), config, func(n *node) error {
				event, err := n.adapter.ProcessMessage(cmd.Context(), req.Message, req.Proof, relay.ExecutionContext{
					Accounts: req.Accounts,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, event)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newSubmitCommand(config *relay.Config) *cobra.Command {
	var f messageFlags
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a message on the inbox of a running relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			client, err := redisbus.NewClient(config.RedisURL)
			if err != nil {
				return err
			}
			return errors.Join(
				redisbus.Submit(cmd.Context(), client, config.InboxKey, req),
				client.Close(),
			)
		},
	}
	f.register(cmd)
	return cmd
}

func newSetRegistryCommand(config *relay.Config) *cobra.Command {
	var (
		caller, registry string
		version          uint64
	)
	cmd := &cobra.Command{
		Use:   "set-registry",
		Short: "Replace the trust anchor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			callerID, err := parseID(caller)
			if err != nil {
				return fmt.Errorf("caller: %w", err)
			}
			registryID, err := parseID(registry)
			if err != nil {
				return fmt.Errorf("registry: %w", err)
			}
			return withNode(cmd.Context(), config, func(n *node) error {
				if cmd.Flags().Changed("version") {
					return n.adapter.CompareAndSetRegistry(cmd.Context(), callerID, registryID, version)
				}
				return n.adapter.SetRegistry(cmd.Context(), callerID, registryID)
			})
		},
	}
	cmd.Flags().StringVar(&caller, "caller", "", "identity making the change")
	cmd.Flags().StringVar(&registry, "registry", "", "new trust anchor")
	cmd.Flags().Uint64Var(&version, "version", 0, "only apply if the configuration is at this version")
	_ = cmd.MarkFlagRequired("caller")
	_ = cmd.MarkFlagRequired("registry")
	return cmd
}

func newSetValidatorsCommand(config *relay.Config) *cobra.Command {
	var (
		registry   string
		validators []string
	)
	cmd := &cobra.Command{
		Use:   "set-validators",
		Short: "Store the BLS validator set behind a quorum registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registryID, err := parseID(registry)
			if err != nil {
				return fmt.Errorf("registry: %w", err)
			}
			set := make([]verifier.Validator, len(validators))
			for i, entry := range validators {
				set[i], err = redisbus.ParseValidator(entry)
				if err != nil {
					return err
				}
			}
			client, err := redisbus.NewClient(config.RedisURL)
			if err != nil {
				return err
			}
			sets := redisbus.NewValidatorSets(client, config.ValidatorSetPrefix)
			return errors.Join(
				sets.SetValidatorSet(cmd.Context(), registryID, set),
				client.Close(),
			)
		},
	}
	cmd.Flags().StringVar(&registry, "registry", "", "quorum registry")
	cmd.Flags().StringSliceVar(&validators, "validator", nil, "<compressed public key hex>:<weight>, in signer order")
	_ = cmd.MarkFlagRequired("registry")
	return cmd
}

func newServeCommand(config *relay.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Process the inbox, serve peers and expose metrics until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withNode(ctx, config, func(n *node) error {
				return serve(ctx, *config, n)
			})
		},
	}
	cmd.Flags().StringVar(&config.MetricsAddress, "metrics-address", config.MetricsAddress, "metrics listen address")
	cmd.Flags().DurationVar(&config.InboxPollDelay, "poll-delay", config.InboxPollDelay, "maximum time a single inbox pop blocks")
	cmd.Flags().StringVar(&config.NodeID, "node-id", config.NodeID, "node ID to serve peers as; empty disables peer serving")
	cmd.Flags().StringSliceVar(&config.AllowedRelayers, "allowed-relayers", config.AllowedRelayers, "node IDs allowed to submit over the peer transport; empty allows all")
	return cmd
}

func serve(ctx context.Context, config relay.Config, n *node) error {
	inbox := redisbus.NewInbox(n.redis, n.adapter, n.log, redisbus.InboxConfig{
		Key:           config.InboxKey,
		DeadLetterKey: config.DeadLetterKey,
		PollDelay:     config.InboxPollDelay,
	})

	nodeID, servePeers, err := config.PeerNodeID()
	if err != nil {
		return err
	}
	var (
		peers     *network.Network
		transport *redisbus.Transport
		peersUp   <-chan struct{}
	)
	if servePeers {
		peers, transport, err = newPeerServer(config, n, nodeID)
		if err != nil {
			return err
		}
		peersUp = transport.Ready()
	}

	server := &http.Server{
		Addr:              config.MetricsAddress,
		Handler:           newHTTPHandler(n, peersUp),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	n.log.Info("starting relay",
		log.String("inbox", config.InboxKey),
		log.String("metricsAddress", config.MetricsAddress),
		log.Bool("servePeers", servePeers),
		log.Stringer("nodeID", nodeID),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return inbox.Run(ctx)
	})
	if servePeers {
		eg.Go(func() error {
			return transport.Run(ctx, peers)
		})
	}
	eg.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	err = eg.Wait()

	n.log.Info("stopped relay", log.Err(err))
	return err
}

func newReplayDeadLettersCommand(config *relay.Config) *cobra.Command {
	var includeReplays bool
	cmd := &cobra.Command{
		Use:   "replay-dead-letters",
		Short: "Resubmit the requests the inbox failed to execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := redisbus.NewClient(config.RedisURL)
			if err != nil {
				return err
			}
			retry := func(letter redisbus.DeadLetter) bool {
				return includeReplays || letter.Code != relay.ErrReplay.Code
			}
			requeued, err := redisbus.Requeue(cmd.Context(), client, config.DeadLetterKey, config.InboxKey, retry)
			if err != nil {
				return errors.Join(err, client.Close())
			}
			return errors.Join(
				printJSON(cmd, replayResult{Requeued: requeued}),
				client.Close(),
			)
		},
	}
	cmd.Flags().BoolVar(&includeReplays, "include-replays", false, "also resubmit requests rejected as replays")
	return cmd
}

type replayResult struct {
	Requeued int `json:"requeued"`
}

func newRemoteCommand(config *relay.Config) *cobra.Command {
	var (
		to      string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Submit to a relay serving peers",
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&to, "to", "", "node ID of the serving relay")
	flags.DurationVar(&timeout, "timeout", network.DefaultRequestTimeout, "maximum time to wait for the answer")
	flags.StringVar(&config.NodeID, "node-id", config.NodeID, "node ID to submit as; random if empty")
	_ = cmd.MarkPersistentFlagRequired("to")

	// call runs [fn] against the relay named by --to
	call := func(cmd *cobra.Command, fn func(context.Context, *network.RelayClient, ids.NodeID) error) error {
		nodeID, err := ids.NodeIDFromString(to)
		if err != nil {
			return fmt.Errorf("to: %w", err)
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return withPeerClient(ctx, *config, func(client *network.RelayClient) error {
			return fn(ctx, client, nodeID)
		})
	}

	cmd.AddCommand(
		newRemoteProcessCommand(call),
		newRemoteSetRegistryCommand(call),
	)
	return cmd
}

type remoteCall func(cmd *cobra.Command, fn func(context.Context, *network.RelayClient, ids.NodeID) error) error

func newRemoteProcessCommand(call remoteCall) *cobra.Command {
	var f messageFlags
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Verify and execute a message on a remote relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			return call(cmd, func(ctx context.Context, client *network.RelayClient, nodeID ids.NodeID) error {
				resp, err := client.ProcessMessage(ctx, nodeID, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, resp)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newRemoteSetRegistryCommand(call remoteCall) *cobra.Command {
	var (
		key, registry string
		version       uint64
	)
	cmd := &cobra.Command{
		Use:   "set-registry",
		Short: "Replace the trust anchor of a remote relay with an authority-signed update",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			seed, err := hexutil.Decode(key)
			if err != nil {
				return fmt.Errorf("key: %w", err)
			}
			if len(seed) != ed25519.SeedSize {
				return fmt.Errorf("%w: got %d", errInvalidSeedLength, len(seed))
			}
			registryID, err := parseID(registry)
			if err != nil {
				return fmt.Errorf("registry: %w", err)
			}
			req := network.SignRegistryUpdate(ed25519.NewKeyFromSeed(seed), registryID, version)
			return call(cmd, func(ctx context.Context, client *network.RelayClient, nodeID ids.NodeID) error {
				return client.SetRegistry(ctx, nodeID, req)
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "0x-prefixed ed25519 seed of the authority")
	cmd.Flags().StringVar(&registry, "registry", "", "new trust anchor")
	cmd.Flags().Uint64Var(&version, "version", 0, "configuration version the update applies to")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("registry")
	_ = cmd.MarkFlagRequired("version")
	return cmd
}

// parseID accepts a cb58 ID or 32 0x-prefixed hex bytes
func parseID(s string) (ids.ID, error) {
	if !strings.HasPrefix(s, "0x") {
		return ids.FromString(s)
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return ids.Empty, err
	}
	if len(b) != ids.IDLen {
		return ids.Empty, fmt.Errorf("%w: got %d", errInvalidIDLength, len(b))
	}
	return ids.ID(b), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
