package throttle

import (
	"github.com/Morditux/throttle/store"
)

// Option configures a Throttle or a Keyed throttle.
type Option func(*options)

type options struct {
	clock     Clock
	observer  func(Outcome)
	storeOpts []store.Option
}

// WithClock sets the time source. Tests use it to drive time by hand.
func WithClock(c Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithObserver sets a callback invoked with the outcome of every event,
// after the counter lock has been released. Used for metrics.
func WithObserver(fn func(Outcome)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// WithStoreOptions passes options to the registry behind a Keyed throttle,
// for example a key cap with LRU eviction. Ignored by the single-key Throttle.
func WithStoreOptions(opts ...store.Option) Option {
	return func(o *options) {
		o.storeOpts = append(o.storeOpts, opts...)
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
