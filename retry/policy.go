package retry

import (
	"time"
)

// Policy controls how a command is retried. The zero value is usable and
// means DefaultPolicy.
type Policy struct {
	// MaxAttempts is the total number of dispatches, including the first.
	// Default: 3.
	MaxAttempts int

	// Timeout bounds each attempt.
	// Default: the shell's command timeout.
	Timeout time.Duration

	// Delay is the fixed pause between attempts. Zero means the default;
	// use NoDelay (any negative value) to retry immediately.
	// Default: 1 second.
	Delay time.Duration

	// Validator, if set, must accept the output for an attempt to succeed.
	Validator Validator

	// AllowErrorOutput returns output containing error lines instead of
	// failing with ErrCommandFailed.
	AllowErrorOutput bool
}

// NoDelay as Policy.Delay retries without pausing.
const NoDelay time.Duration = -1

// DefaultPolicy returns 3 attempts one second apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       time.Second,
	}
}

// SingleAttempt returns a policy that dispatches exactly once.
func SingleAttempt(timeout time.Duration) Policy {
	return Policy{
		MaxAttempts: 1,
		Timeout:     timeout,
	}
}

// WithDefaults returns a copy of the policy with defaults applied for unset
// fields. A negative Delay is kept.
func (p Policy) WithDefaults() Policy {
	defaults := DefaultPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.Delay == 0 {
		p.Delay = defaults.Delay
	}
	return p
}
