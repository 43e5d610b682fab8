// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/luxfi/ids"
	"github.com/luxfi/relay/verifier"
)

const (
	MemoryStore = "memory"
	SQLiteStore = "sqlite"
)

var (
	errUnknownStore        = errors.New("unknown store driver")
	errMissingStorePath    = errors.New("sqlite store requires a path")
	errNoSchemes           = errors.New("at least one proof scheme must be enabled")
	errInvalidFilterConfig = errors.New("seen filter false positive probabilities must be in (0, 1) with reset above target")
	errInvalidThrottle     = errors.New("throttle limit and period must both be positive or both be zero")
	errInvalidPollDelay    = errors.New("inbox poll delay must be positive")
	errInvalidConcurrency  = errors.New("peer concurrency must be positive")
	errInvalidQueueSize    = errors.New("webhook queue size must be positive")
)

// Config configures a relay daemon. Every field can be set from the
// environment; command line flags take precedence.
type Config struct {
	// Quiet disables logging
	Quiet bool `env:"RELAY_QUIET"`

	StoreDriver string `env:"RELAY_STORE"      envDefault:"sqlite"`
	StorePath   string `env:"RELAY_STORE_PATH" envDefault:"relay.db"`

	// Schemes lists the proof schemes accepted by the verifier
	Schemes           []string `env:"RELAY_SCHEMES"            envDefault:"ed25519,secp256k1" envSeparator:","`
	QuorumNumerator   uint64   `env:"RELAY_QUORUM_NUMERATOR"   envDefault:"2"`
	QuorumDenominator uint64   `env:"RELAY_QUORUM_DENOMINATOR" envDefault:"3"`
	// VerificationCacheSize of zero disables verdict caching
	VerificationCacheSize int `env:"RELAY_VERIFICATION_CACHE_SIZE" envDefault:"4096"`

	SeenFilterElements          int     `env:"RELAY_SEEN_FILTER_ELEMENTS"            envDefault:"1048576"`
	SeenFilterFalsePositiveRate float64 `env:"RELAY_SEEN_FILTER_FALSE_POSITIVE_RATE" envDefault:"0.01"`
	SeenFilterResetRate         float64 `env:"RELAY_SEEN_FILTER_RESET_RATE"          envDefault:"0.05"`

	RedisURL           string        `env:"RELAY_REDIS_URL"              envDefault:"redis://localhost:6379/0"`
	InboxKey           string        `env:"RELAY_INBOX_KEY"              envDefault:"relay:inbox"`
	DeadLetterKey      string        `env:"RELAY_DEAD_LETTER_KEY"        envDefault:"relay:dead"`
	StreamPrefix       string        `env:"RELAY_STREAM_PREFIX"          envDefault:"relay:destination:"`
	EventsChannel      string        `env:"RELAY_EVENTS_CHANNEL"         envDefault:"relay:events"`
	ValidatorSetPrefix string        `env:"RELAY_VALIDATOR_SET_PREFIX"   envDefault:"relay:validators:"`
	InboxPollDelay     time.Duration `env:"RELAY_INBOX_POLL_DELAY"       envDefault:"1s"`

	WebhookURL     string        `env:"RELAY_WEBHOOK_URL"`
	WebhookTimeout time.Duration `env:"RELAY_WEBHOOK_TIMEOUT" envDefault:"5s"`
	// WebhookQueueSize events may wait for delivery before new ones are
	// dropped
	WebhookQueueSize int `env:"RELAY_WEBHOOK_QUEUE_SIZE" envDefault:"1024"`

	MetricsAddress string `env:"RELAY_METRICS_ADDRESS" envDefault:":9650"`
	Namespace      string `env:"RELAY_NAMESPACE"       envDefault:"relay"`

	// ThrottleLimit payloads are allowed per destination every
	// ThrottlePeriod. Zero disables throttling.
	ThrottleLimit  int           `env:"RELAY_THROTTLE_LIMIT"`
	ThrottlePeriod time.Duration `env:"RELAY_THROTTLE_PERIOD"`

	// NodeID this relayer serves peers as. Empty disables the peer
	// transport.
	NodeID     string `env:"RELAY_NODE_ID"`
	PeerPrefix string `env:"RELAY_PEER_PREFIX" envDefault:"relay:peer:"`
	// AllowedRelayers restricts peer requests to these node IDs. Empty
	// admits every relayer.
	AllowedRelayers []string `env:"RELAY_ALLOWED_RELAYERS"  envSeparator:","`
	PeerConcurrency int      `env:"RELAY_PEER_CONCURRENCY" envDefault:"16"`
	// PeerThrottleLimit requests are allowed per relayer every
	// PeerThrottlePeriod. Zero disables throttling.
	PeerThrottleLimit  int           `env:"RELAY_PEER_THROTTLE_LIMIT"`
	PeerThrottlePeriod time.Duration `env:"RELAY_PEER_THROTTLE_PERIOD"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	var c Config
	// Defaults are declared in the struct tags and cannot fail to parse.
	_ = env.ParseWithOptions(&c, env.Options{Environment: map[string]string{}})
	return c
}

// ParseEnv returns the default configuration overridden by the RELAY_*
// environment variables.
func ParseEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// Validate returns an error if [c] cannot be used to run a relay
func (c Config) Validate() error {
	switch c.StoreDriver {
	case MemoryStore:
	case SQLiteStore:
		if c.StorePath == "" {
			return errMissingStorePath
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownStore, c.StoreDriver)
	}

	if len(c.Schemes) == 0 {
		return errNoSchemes
	}
	for _, name := range c.Schemes {
		if _, err := verifier.ParseScheme(name); err != nil {
			return err
		}
	}
	if c.QuorumNumerator == 0 || c.QuorumNumerator > c.QuorumDenominator {
		return verifier.ErrInvalidQuorum
	}
	if c.SeenFilterFalsePositiveRate <= 0 ||
		c.SeenFilterResetRate >= 1 ||
		c.SeenFilterResetRate <= c.SeenFilterFalsePositiveRate {
		return errInvalidFilterConfig
	}
	if !validThrottle(c.ThrottleLimit, c.ThrottlePeriod) {
		return errInvalidThrottle
	}
	if c.InboxPollDelay <= 0 {
		return errInvalidPollDelay
	}
	if c.WebhookQueueSize <= 0 {
		return errInvalidQueueSize
	}

	if _, _, err := c.PeerNodeID(); err != nil {
		return err
	}
	if _, err := c.AllowedRelayerIDs(); err != nil {
		return err
	}
	if c.PeerConcurrency <= 0 {
		return errInvalidConcurrency
	}
	if !validThrottle(c.PeerThrottleLimit, c.PeerThrottlePeriod) {
		return fmt.Errorf("peer %w", errInvalidThrottle)
	}
	return nil
}

func validThrottle(limit int, period time.Duration) bool {
	return limit >= 0 && period >= 0 && (limit > 0) == (period > 0)
}

// PeerNodeID returns the node ID this relayer serves peers as, or false if
// the peer transport is disabled
func (c Config) PeerNodeID() (ids.NodeID, bool, error) {
	if c.NodeID == "" {
		return ids.EmptyNodeID, false, nil
	}
	nodeID, err := ids.NodeIDFromString(c.NodeID)
	if err != nil {
		return ids.EmptyNodeID, false, fmt.Errorf("node id: %w", err)
	}
	return nodeID, true, nil
}

// AllowedRelayerIDs returns the parsed AllowedRelayers
func (c Config) AllowedRelayerIDs() ([]ids.NodeID, error) {
	nodeIDs := make([]ids.NodeID, len(c.AllowedRelayers))
	for i, s := range c.AllowedRelayers {
		nodeID, err := ids.NodeIDFromString(s)
		if err != nil {
			return nil, fmt.Errorf("allowed relayer %d: %w", i, err)
		}
		nodeIDs[i] = nodeID
	}
	return nodeIDs, nil
}
