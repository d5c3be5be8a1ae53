package throttle

import "time"

// Outcome identifies the transition a single event caused.
type Outcome uint8

const (
	// Counted means the event fit under the hit limit.
	Counted Outcome = iota

	// WindowRestarted means the hit limit was exceeded but the window had
	// already run out, so a new window started with this event.
	WindowRestarted

	// LockoutExpired means a lockout ended and the event that found it
	// expired started a fresh window.
	LockoutExpired

	// LockoutStarted means the hit limit was exceeded within the window and
	// a lockout began.
	LockoutStarted

	// Locked means the event arrived during an active lockout.
	Locked
)

// Throttled reports whether the event must be refused.
func (o Outcome) Throttled() bool {
	return o == LockoutStarted || o == Locked
}

func (o Outcome) String() string {
	switch o {
	case Counted:
		return "counted"
	case WindowRestarted:
		return "window_restarted"
	case LockoutExpired:
		return "lockout_expired"
	case LockoutStarted:
		return "lockout_started"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c != nil {
		return c()
	}
	return time.Now()
}

// unlocked is the lockedUntil value of a counter with no active lockout.
const unlocked = 0

// Counter is the state of one monitored activity stream. Timestamps are
// unix milliseconds. The zero value is a window that started at the epoch,
// use NewCounter to start one at a given time.
//
// A Counter is not safe for concurrent use; callers hold a lock across Record.
type Counter struct {
	intervalStart int64
	hits          uint64
	lockedUntil   int64
}

// NewCounter returns a counter whose first window starts at now.
func NewCounter(now time.Time) Counter {
	return Counter{intervalStart: now.UnixMilli()}
}

// Locked reports whether a lockout was set and has not been observed to
// expire yet. Expiry is only detected by Record.
func (c *Counter) Locked() bool {
	return c.lockedUntil != unlocked
}

func (c *Counter) lockedAt(now time.Time) bool {
	return c.lockedUntil != unlocked && now.UnixMilli() < c.lockedUntil
}

// IntervalStart returns the start of the current window.
func (c *Counter) IntervalStart() time.Time {
	return time.UnixMilli(c.intervalStart)
}

// Record counts one event and applies the window and lockout rules.
// The clock is read at most once, and only when a decision needs it.
func (c *Counter) Record(cfg Config, clock Clock) Outcome {
	c.hits++

	var now int64
	haveNow := false
	expired := false

	if c.lockedUntil != unlocked {
		now = clock.now().UnixMilli()
		haveNow = true
		if now < c.lockedUntil {
			return Locked
		}
		c.lockedUntil = unlocked
		expired = true
	}

	if c.hits <= uint64(cfg.MaxHits) {
		return Counted
	}

	// The first excess event after a lockout never retriggers it.
	if expired {
		c.intervalStart = now
		c.hits = 1
		return LockoutExpired
	}

	if !haveNow {
		now = clock.now().UnixMilli()
	}

	if now-c.intervalStart <= cfg.Interval.Milliseconds() {
		c.intervalStart = now
		c.hits = 1
		c.lockedUntil = now + cfg.Lockout.Milliseconds()
		return LockoutStarted
	}

	c.intervalStart = now
	c.hits = 1
	return WindowRestarted
}
