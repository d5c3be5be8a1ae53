// Package store provides the in-memory registry that holds per-key throttle
// state.
package store

import (
	"errors"
	"time"

	"golang.org/x/time/rate"
)

// ErrStoreFull is returned when a new key would exceed the configured
// capacity and the eviction policy is EvictReject.
var ErrStoreFull = errors.New("throttle: store capacity exceeded")

// ErrAdmissionDenied is returned when new keys arrive faster than the
// configured admission rate.
var ErrAdmissionDenied = errors.New("throttle: new key admission rate exceeded")

// Eviction selects what happens when a shard is at capacity.
type Eviction uint8

const (
	// EvictReject refuses new keys with ErrStoreFull.
	EvictReject Eviction = iota

	// EvictLRU drops the least recently updated key of the shard.
	EvictLRU
)

func (e Eviction) String() string {
	switch e {
	case EvictReject:
		return "reject"
	case EvictLRU:
		return "lru"
	default:
		return "unknown"
	}
}

const defaultShards = 32

// Option configures a Registry.
type Option func(*config)

type config struct {
	shards    int
	maxKeys   int
	eviction  Eviction
	admission *rate.Limiter
	clock     func() time.Time
}

// WithShards sets the number of lock shards. Keys are spread over shards by
// hash; use 1 for an exact global key cap.
func WithShards(n int) Option {
	return func(c *config) {
		c.shards = n
	}
}

// WithMaxKeys bounds the number of tracked keys. The bound is split evenly
// across shards, each shard holding at most ceil(n / shards) keys.
// Zero means unbounded.
func WithMaxKeys(n int) Option {
	return func(c *config) {
		c.maxKeys = n
	}
}

// WithEviction sets the policy applied when a shard is at capacity.
func WithEviction(e Eviction) Option {
	return func(c *config) {
		c.eviction = e
	}
}

// WithAdmissionRate paces the creation of new keys: at most burst keys at
// once, refilled at r per second. Existing keys are never affected.
func WithAdmissionRate(r rate.Limit, burst int) Option {
	return func(c *config) {
		c.admission = rate.NewLimiter(r, burst)
	}
}

// WithClock sets the time source used for admission pacing.
func WithClock(fn func() time.Time) Option {
	return func(c *config) {
		c.clock = fn
	}
}
