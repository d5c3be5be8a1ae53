package throttle

import "errors"

// Error variables for throttle configuration.
var (
	// ErrInvalidInterval is returned when the interval is negative.
	ErrInvalidInterval = errors.New("throttle: interval must be non-negative")

	// ErrInvalidMaxHits is returned when the hit limit is negative.
	ErrInvalidMaxHits = errors.New("throttle: max hits must be non-negative")

	// ErrInvalidLockout is returned when the lockout duration is negative.
	ErrInvalidLockout = errors.New("throttle: lockout must be non-negative")
)
