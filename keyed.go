package throttle

import (
	"time"

	"github.com/Morditux/throttle/store"
)

// Keyed tracks an independent counter per key, for example one per email
// address on a sign-in form. All keys share one configuration.
//
// Counters are created on first use and kept until the caller removes them
// with Forget or Prune, so memory grows with the number of distinct keys
// unless the registry is bounded with WithStoreOptions.
type Keyed[K comparable] struct {
	config   Config
	clock    Clock
	observer func(Outcome)
	counters *store.Registry[K, Counter]
}

// NewKeyed creates an empty keyed throttle.
func NewKeyed[K comparable](cfg Config, opts ...Option) (*Keyed[K], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	k := &Keyed[K]{
		config:   cfg,
		clock:    o.clock,
		observer: o.observer,
	}

	storeOpts := o.storeOpts
	if o.clock != nil {
		storeOpts = append([]store.Option{store.WithClock(o.clock)}, storeOpts...)
	}
	k.counters = store.New[K](func() Counter {
		return NewCounter(k.clock.now())
	}, storeOpts...)

	return k, nil
}

// Check counts one event for key and returns the transition it caused.
// An error is only possible when the registry is bounded and the key could
// not be admitted.
func (k *Keyed[K]) Check(key K) (Outcome, error) {
	var outcome Outcome
	err := k.counters.Update(key, func(c *Counter) {
		outcome = c.Record(k.config, k.clock)
	})
	if err != nil {
		return Locked, err
	}

	if k.observer != nil {
		k.observer(outcome)
	}
	return outcome, nil
}

// IsThrottled counts one event for key and reports whether it must be
// refused. A key the registry cannot admit is refused.
func (k *Keyed[K]) IsThrottled(key K) bool {
	outcome, err := k.Check(key)
	if err != nil {
		return true
	}
	return outcome.Throttled()
}

// Allow counts one event for key and reports whether it may proceed.
func (k *Keyed[K]) Allow(key K) (bool, error) {
	outcome, err := k.Check(key)
	if err != nil {
		return false, err
	}
	return !outcome.Throttled(), nil
}

// Forget drops the counter of key. The next event for key starts fresh.
func (k *Keyed[K]) Forget(key K) {
	k.counters.Delete(key)
}

// Prune drops every counter that is not in an active lockout and whose
// window started more than idle ago. It returns the number of counters
// removed. Prune only runs when called.
func (k *Keyed[K]) Prune(idle time.Duration) int {
	now := k.clock.now()
	cutoff := now.Add(-idle)
	return k.counters.DeleteFunc(func(_ K, c *Counter) bool {
		return !c.lockedAt(now) && c.IntervalStart().Before(cutoff)
	})
}

// Len returns the number of tracked keys.
func (k *Keyed[K]) Len() int {
	return k.counters.Len()
}
