package retry

import (
	"fmt"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/reportutils"
)

type RetryDurationLimitExceededErr struct {
	lastErr  error
	attempts int
	duration time.Duration
}

func (rde RetryDurationLimitExceededErr) Error() string {
	return fmt.Sprintf(
		"retryable function did not succeed after %d attempt(s) over %s; last error was: %v",
		rde.attempts,
		reportutils.DurationToHMS(rde.duration),
		rde.lastErr,
	)
}

func (rde RetryDurationLimitExceededErr) Unwrap() error {
	return rde.lastErr
}

// AttemptsExhaustedErr means that the retryer ran the function as many
// times as it was allowed to, and every attempt failed.
type AttemptsExhaustedErr struct {
	lastErr  error
	attempts int
}

func (aee AttemptsExhaustedErr) Error() string {
	return fmt.Sprintf(
		"retryable function failed on all %d attempt(s); last error was: %v",
		aee.attempts,
		aee.lastErr,
	)
}

func (aee AttemptsExhaustedErr) Unwrap() error {
	return aee.lastErr
}

// Attempts returns how many times the function ran.
func (aee AttemptsExhaustedErr) Attempts() int {
	return aee.attempts
}
