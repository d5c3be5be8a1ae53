// Package throttle counts activity and refuses it, with a temporary lockout,
// once it exceeds a configured rate.
package throttle

import (
	"time"
)

// Limiter is the string-keyed view of a throttle used by HTTP middleware.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow records one event for key and reports whether it may proceed.
	// An error means the verdict could not be computed for that key.
	Allow(key string) (bool, error)
}

// DetailedLimiter is a Limiter that can also report which transition an
// event caused.
type DetailedLimiter interface {
	Limiter

	// Check records one event for key and returns its outcome.
	Check(key string) (Outcome, error)
}

// Config holds the throttle configuration.
type Config struct {
	// Interval is the window length. Hits above MaxHits that arrive within
	// Interval of the window start trigger a lockout.
	Interval time.Duration `yaml:"interval"`

	// MaxHits is the number of events allowed per window before the next
	// one triggers a lockout. Zero locks out on the first excess event.
	MaxHits int `yaml:"max_hits"`

	// Lockout is how long every event is refused once a lockout triggers.
	Lockout time.Duration `yaml:"lockout"`
}

// DefaultConfig returns a configuration suited to sign-in forms:
// 5 attempts per minute, then a 5 minute lockout.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		MaxHits:  5,
		Lockout:  5 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Interval < 0 {
		return ErrInvalidInterval
	}
	if c.MaxHits < 0 {
		return ErrInvalidMaxHits
	}
	if c.Lockout < 0 {
		return ErrInvalidLockout
	}
	return nil
}

// WithLockout returns a copy of the config with the specified lockout.
func (c Config) WithLockout(d time.Duration) Config {
	c.Lockout = d
	return c
}
