package retry

import (
	"fmt"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/util"
	"github.com/mongodb-labs/data-inflater/option"
)

// Retryer handles retrying operations that fail because of transient
// failures. A Retryer is immutable; its With* methods return modified
// copies.
type Retryer struct {
	durationLimit option.Option[time.Duration]
	maxAttempts   int
	minSleepTime  time.Duration
	maxSleepTime  time.Duration
	retryable     func(error) bool
	description   option.Option[string]
}

// New returns a new retryer that retries transient errors for up to
// DefaultDurationLimit.
func New() *Retryer {
	return &Retryer{
		durationLimit: option.Some(DefaultDurationLimit),
		minSleepTime:  DefaultMinSleepTime,
		maxSleepTime:  DefaultMaxSleepTime,
		retryable:     util.IsTransientError,
	}
}

// WithDurationLimit returns a new Retryer that stops retrying once the
// given duration has elapsed.
func (r *Retryer) WithDurationLimit(limit time.Duration) *Retryer {
	r2 := *r
	r2.durationLimit = option.Some(limit)

	return &r2
}

// WithoutDurationLimit returns a new Retryer that retries until it runs
// out of attempts, however long that takes.
func (r *Retryer) WithoutDurationLimit() *Retryer {
	r2 := *r
	r2.durationLimit = option.None[time.Duration]()

	return &r2
}

// DurationLimit returns the Retryer's time limit, if it has one.
func (r *Retryer) DurationLimit() option.Option[time.Duration] {
	return r.durationLimit
}

// WithMaxAttempts returns a new Retryer that runs the function at most
// `attempts` times in total. Zero means no attempt limit.
func (r *Retryer) WithMaxAttempts(attempts int) *Retryer {
	r2 := *r
	r2.maxAttempts = attempts

	return &r2
}

// WithBackoff returns a new Retryer whose sleeps between attempts start
// at minSleep and double up to maxSleep.
func (r *Retryer) WithBackoff(minSleep, maxSleep time.Duration) *Retryer {
	r2 := *r
	r2.minSleepTime = minSleep
	r2.maxSleepTime = max(minSleep, maxSleep)

	return &r2
}

// WithRetryable returns a new Retryer that retries exactly those errors
// for which the given predicate returns true.
func (r *Retryer) WithRetryable(isRetryable func(error) bool) *Retryer {
	r2 := *r
	r2.retryable = isRetryable

	return &r2
}

func (r *Retryer) WithDescription(msg string, args ...any) *Retryer {
	r2 := *r
	r2.description = option.Some(fmt.Sprintf(msg, args...))

	return &r2
}
