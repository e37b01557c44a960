package retry

import (
	"context"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/internal/util"
	"github.com/mongodb-labs/data-inflater/mtime"
	"github.com/pkg/errors"
)

// RetryableFunc is the function that a Retryer runs.
type RetryableFunc func(context.Context, *FuncInfo) error

// Run runs f until it succeeds, returns an error that the Retryer does not
// consider retryable, or exhausts the Retryer's attempt or duration limit.
// Between attempts it sleeps with exponential backoff.
//
// If attempts run out, the returned error is an AttemptsExhaustedErr; if
// time runs out, it is a RetryDurationLimitExceededErr. Both wrap the last
// error that f returned. A non-retryable error is returned unchanged.
func (r *Retryer) Run(ctx context.Context, logger *logger.Logger, f RetryableFunc) error {
	li := &LoopInfo{
		durationLimit: r.durationLimit,
	}
	fi := &FuncInfo{
		loopInfo:  li,
		startTime: time.Now(),
	}

	sleepTime := r.minSleepTime

	for {
		err := f(ctx, fi)
		if err == nil {
			return nil
		}

		if !r.shouldRetry(err) {
			return err
		}

		attempts := li.attemptsSoFar + 1

		if r.maxAttempts > 0 && attempts >= r.maxAttempts {
			return AttemptsExhaustedErr{
				lastErr:  err,
				attempts: attempts,
			}
		}

		if limit, has := li.durationLimit.Get(); has && fi.GetDurationSoFar() > limit {
			return RetryDurationLimitExceededErr{
				lastErr:  err,
				attempts: attempts,
				duration: fi.GetDurationSoFar(),
			}
		}

		event := logger.Warn().
			Int("attempt", attempts).
			Int("error code", util.GetErrorCode(err)).
			Err(err)

		if desc, has := r.description.Get(); has {
			event = event.Str("operation", desc)
		}

		event.Msgf("Waiting %s to retry after failed attempt.", sleepTime)

		if sleepErr := mtime.Sleep(ctx, sleepTime); sleepErr != nil {
			return errors.Wrapf(
				util.WrapCtxErrWithCause(ctx),
				"canceled while waiting to retry (last error: %v)",
				err,
			)
		}

		sleepTime *= sleepTimeMultiplier
		if sleepTime > r.maxSleepTime {
			sleepTime = r.maxSleepTime
		}

		li.attemptsSoFar++
	}
}

func (r *Retryer) shouldRetry(err error) bool {
	if r.retryable == nil {
		return false
	}

	return r.retryable(err)
}
