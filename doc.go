/*
Package throttle counts how often an activity happens and refuses it, with a
temporary lockout, once it goes over a configured rate. It protects resources
such as API endpoints and sign-in forms from abuse, keeping all state in
process memory.

# Configuration

A throttle is built from a Config with three settings:

  - Interval: the window length.
  - MaxHits: the events allowed per window.
  - Lockout: how long every event is refused once the limit is crossed.

Durations are used at millisecond resolution.

# The counting rules

Each event increments the counter. While the counter holds at most MaxHits
events it is never throttled, however long the window has been open. The
first event above MaxHits looks at the window: if it arrived within Interval
of the window start, a lockout begins and the event is refused. Otherwise the
window simply ran out, and a new one starts with that event. During a lockout
every event is refused. Expiry is noticed lazily by the first event at or
after the lockout end, and that event is always let through.

The window only matters once the limit is crossed, so the limit is a trigger
on bursts rather than a fixed-tick bucket.

# Single stream

	t, _ := throttle.New(throttle.Config{
	    Interval: time.Second,
	    MaxHits:  5,
	    Lockout:  time.Minute,
	})
	if t.IsThrottled() {
	    // try again later
	}

# Keyed

Keyed keeps one counter per key, created on first use:

	signins, _ := throttle.NewKeyed[string](throttle.Config{
	    Interval: time.Minute,
	    MaxHits:  5,
	    Lockout:  3 * time.Minute,
	})
	if signins.IsThrottled(strings.ToLower(email)) {
	    // try again later
	}

Keyed counters are never evicted on their own. Call Forget or Prune, or bound
the registry with WithStoreOptions (store.WithMaxKeys, store.EvictLRU,
store.WithAdmissionRate), when memory has to stay bounded.

# Testing

Inject a clock with WithClock to drive time by hand instead of sleeping.

# HTTP and metrics

The middleware package wraps a Keyed[string] as net/http middleware or a
per-endpoint Router. The metrics package exports decisions to Prometheus
through WithObserver.
*/
package throttle
