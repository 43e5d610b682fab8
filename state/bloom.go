// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/ids"
	"github.com/luxfi/metric"
)

const (
	minHashes      = 1
	maxHashes      = 16
	minEntries     = 1
	bitsPerByte    = 8
	bytesPerUint64 = 8
	hashRotation   = 17
	ln2Squared     = math.Ln2 * math.Ln2
)

var (
	errTooFewHashes  = errors.New("too few hashes")
	errTooManyHashes = errors.New("too many hashes")
	errTooFewEntries = errors.New("too few entries")
)

// BloomFilter answers "definitely not seen" for message IDs. False positives
// are possible; false negatives are not, as long as every seen ID was added
// since the last reset.
type BloomFilter struct {
	targetFalsePositiveProbability float64
	resetFalsePositiveProbability  float64

	metrics bloomMetrics

	lock     sync.RWMutex
	maxCount int
	bits     *bitArray
	salt     ids.ID
}

type bloomMetrics struct {
	count      metric.Gauge
	numHashes  metric.Gauge
	numEntries metric.Gauge
	maxCount   metric.Gauge
	resetCount metric.Counter
}

type bitArray struct {
	numBits   uint64
	hashSeeds []uint64
	entries   []byte
	count     int
}

// NewBloomFilter returns a filter sized for [targetElements] IDs at
// [targetFalsePositiveProbability]. Once enough IDs were added that the false
// positive probability reaches [resetFalsePositiveProbability],
// NeedsReset reports true.
func NewBloomFilter(
	registerer metric.Registerer,
	namespace string,
	targetElements int,
	targetFalsePositiveProbability,
	resetFalsePositiveProbability float64,
) (*BloomFilter, error) {
	b := &BloomFilter{
		targetFalsePositiveProbability: targetFalsePositiveProbability,
		resetFalsePositiveProbability:  resetFalsePositiveProbability,
		metrics:                        newBloomMetrics(registerer, namespace),
	}
	return b, b.Reset(targetElements)
}

func newBloomMetrics(registerer metric.Registerer, namespace string) bloomMetrics {
	registry, ok := registerer.(metric.Registry)
	if !ok {
		return bloomMetrics{
			count:      metric.NewGauge(metric.GaugeOpts{Namespace: namespace, Name: "seen_filter_count"}),
			numHashes:  metric.NewGauge(metric.GaugeOpts{Namespace: namespace, Name: "seen_filter_hashes"}),
			numEntries: metric.NewGauge(metric.GaugeOpts{Namespace: namespace, Name: "seen_filter_entries"}),
			maxCount:   metric.NewGauge(metric.GaugeOpts{Namespace: namespace, Name: "seen_filter_max_count"}),
			resetCount: metric.NewCounter(metric.CounterOpts{Namespace: namespace, Name: "seen_filter_reset_count"}),
		}
	}

	m := metric.NewWithRegistry(namespace, registry)
	return bloomMetrics{
		count:      m.NewGauge("seen_filter_count", "Number of message IDs added to the seen filter"),
		numHashes:  m.NewGauge("seen_filter_hashes", "Number of hash functions"),
		numEntries: m.NewGauge("seen_filter_entries", "Number of bytes in the seen filter"),
		maxCount:   m.NewGauge("seen_filter_max_count", "Maximum additions before the filter is rebuilt"),
		resetCount: m.NewCounter("seen_filter_reset_count", "Number of filter rebuilds"),
	}
}

// Add records [messageID] as possibly seen.
func (b *BloomFilter) Add(messageID ids.ID) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.bits.add(messageID[:], b.salt[:])
	b.metrics.count.Inc()
}

// Has returns false only if [messageID] was never added.
func (b *BloomFilter) Has(messageID ids.ID) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()

	return b.bits.contains(messageID[:], b.salt[:])
}

// Count returns the number of additions since the last reset.
func (b *BloomFilter) Count() int {
	b.lock.RLock()
	defer b.lock.RUnlock()

	return b.bits.count
}

// NeedsReset reports whether the filter's false positive probability has
// exceeded its reset threshold.
func (b *BloomFilter) NeedsReset() bool {
	b.lock.RLock()
	defer b.lock.RUnlock()

	return b.bits.count > b.maxCount
}

// Reset empties the filter and resizes it for [targetElements] IDs with a
// fresh salt. Callers must re-add every seen ID afterwards.
func (b *BloomFilter) Reset(targetElements int) error {
	numHashes, numEntries := optimalParameters(targetElements, b.targetFalsePositiveProbability)
	newBits, err := newBitArray(numHashes, numEntries)
	if err != nil {
		return err
	}

	var salt ids.ID
	if _, err := rand.Read(salt[:]); err != nil {
		return err
	}
	maxCount := estimateCount(numHashes, numEntries, b.resetFalsePositiveProbability)

	b.lock.Lock()
	defer b.lock.Unlock()

	b.maxCount = maxCount
	b.bits = newBits
	b.salt = salt

	b.metrics.count.Set(0)
	b.metrics.numHashes.Set(float64(numHashes))
	b.metrics.numEntries.Set(float64(numEntries))
	b.metrics.maxCount.Set(float64(maxCount))
	b.metrics.resetCount.Inc()
	return nil
}

func newBitArray(numHashes, numEntries int) (*bitArray, error) {
	if numEntries < minEntries {
		return nil, errTooFewEntries
	}
	switch {
	case numHashes < minHashes:
		return nil, fmt.Errorf("%w: %d < %d", errTooFewHashes, numHashes, minHashes)
	case numHashes > maxHashes:
		return nil, fmt.Errorf("%w: %d > %d", errTooManyHashes, numHashes, maxHashes)
	}

	seedBytes := make([]byte, numHashes*bytesPerUint64)
	if _, err := rand.Read(seedBytes); err != nil {
		return nil, err
	}
	seeds := make([]uint64, numHashes)
	for i := range seeds {
		seeds[i] = binary.BigEndian.Uint64(seedBytes[i*bytesPerUint64:])
	}

	return &bitArray{
		numBits:   uint64(numEntries * bitsPerByte),
		hashSeeds: seeds,
		entries:   make([]byte, numEntries),
	}, nil
}

func saltedHash(key, salt []byte) uint64 {
	digest := hash.ComputeHash256(append(append(make([]byte, 0, len(key)+len(salt)), key...), salt...))
	return binary.BigEndian.Uint64(digest)
}

func (a *bitArray) add(key, salt []byte) {
	h := saltedHash(key, salt)
	for _, seed := range a.hashSeeds {
		h = bits.RotateLeft64(h, hashRotation) ^ seed
		index := h % a.numBits
		a.entries[index/bitsPerByte] |= 1 << (index % bitsPerByte)
	}
	a.count++
}

func (a *bitArray) contains(key, salt []byte) bool {
	h := saltedHash(key, salt)
	for _, seed := range a.hashSeeds {
		h = bits.RotateLeft64(h, hashRotation) ^ seed
		index := h % a.numBits
		if a.entries[index/bitsPerByte]&(1<<(index%bitsPerByte)) == 0 {
			return false
		}
	}
	return true
}

func optimalParameters(count int, falsePositiveProbability float64) (int, int) {
	numEntries := optimalEntries(count, falsePositiveProbability)
	return optimalHashes(numEntries, count), numEntries
}

func optimalHashes(numEntries, count int) int {
	switch {
	case numEntries < minEntries:
		return minHashes
	case count <= 0:
		return maxHashes
	}

	numHashes := math.Ceil(float64(numEntries) * bitsPerByte * math.Ln2 / float64(count))
	if numHashes >= maxHashes {
		return maxHashes
	}
	return max(int(numHashes), minHashes)
}

func optimalEntries(count int, falsePositiveProbability float64) int {
	switch {
	case count <= 0, falsePositiveProbability >= 1:
		return minEntries
	case falsePositiveProbability <= 0:
		return math.MaxInt
	}

	entriesInBits := -float64(count) * math.Log(falsePositiveProbability) / ln2Squared
	entries := (entriesInBits + bitsPerByte - 1) / bitsPerByte
	if entries >= math.MaxInt {
		return math.MaxInt
	}
	return max(int(entries), minEntries)
}

func estimateCount(numHashes, numEntries int, falsePositiveProbability float64) int {
	switch {
	case numHashes < minHashes, numEntries < minEntries, falsePositiveProbability <= 0:
		return 0
	case falsePositiveProbability >= 1:
		return math.MaxInt
	}

	invNumHashes := 1 / float64(numHashes)
	numBits := float64(numEntries * bitsPerByte)
	exp := 1 - math.Pow(falsePositiveProbability, invNumHashes)
	count := math.Ceil(-math.Log(exp) * numBits * invNumHashes)
	if count >= math.MaxInt {
		return math.MaxInt
	}
	return int(count)
}
