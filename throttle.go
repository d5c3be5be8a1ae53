package throttle

import "sync"

// Throttle monitors a single activity stream, such as all incoming
// connections to one listener.
type Throttle struct {
	config   Config
	clock    Clock
	observer func(Outcome)

	mu      sync.Mutex
	counter Counter
}

// New creates a throttle whose first window starts now.
//
// Within cfg.Interval only cfg.MaxHits events are allowed, the next one
// locks the throttle for cfg.Lockout.
func New(cfg Config, opts ...Option) (*Throttle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := buildOptions(opts)
	return &Throttle{
		config:   cfg,
		clock:    o.clock,
		observer: o.observer,
		counter:  NewCounter(o.clock.now()),
	}, nil
}

// IsThrottled counts one event and reports whether it must be refused.
func (t *Throttle) IsThrottled() bool {
	return t.Check().Throttled()
}

// Check counts one event and returns the transition it caused.
func (t *Throttle) Check() Outcome {
	t.mu.Lock()
	outcome := t.counter.Record(t.config, t.clock)
	t.mu.Unlock()

	if t.observer != nil {
		t.observer(outcome)
	}
	return outcome
}
