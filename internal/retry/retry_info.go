package retry

import (
	"time"

	"github.com/mongodb-labs/data-inflater/internal/reportutils"
	"github.com/mongodb-labs/data-inflater/option"
	"github.com/rs/zerolog"
)

// LoopInfo stores information relevant to the retrying done.
//
// The attempt number is 0-indexed (0 means this is the first attempt).
type LoopInfo struct {
	attemptsSoFar int
	durationLimit option.Option[time.Duration]
}

// FuncInfo is what the retried function receives on each attempt.
type FuncInfo struct {
	loopInfo  *LoopInfo
	startTime time.Time
}

// Log will log a debug-level message for the current Info values and the
// provided strings. Parameters that don't apply can be empty strings.
//
// Useful for keeping track of DDL commands that change the cluster.
// Generally not recommended for CRUD commands, which may result in too
// many log lines.
func (fi *FuncInfo) Log(logger *zerolog.Logger, cmdName string, namespace string, msg string) {
	if logger == nil {
		return
	}

	event := logger.Debug()
	if cmdName != "" {
		event.Str("command", cmdName)
	}
	if namespace != "" {
		event.Str("namespace", namespace)
	}
	if limit, has := fi.loopInfo.durationLimit.Get(); has {
		event.Str("durationLimit", reportutils.DurationToHMS(limit))
	}
	event.Str("context", msg).
		Int("attemptNumber", fi.GetAttemptNumber()).
		Str("durationSoFar", reportutils.DurationToHMS(fi.GetDurationSoFar())).
		Msg("Running retryable function")
}

// GetAttemptNumber returns the Info's current attempt number (0-indexed).
func (fi *FuncInfo) GetAttemptNumber() int {
	return fi.loopInfo.attemptsSoFar
}

// GetDurationSoFar returns how long the retry loop has run.
func (fi *FuncInfo) GetDurationSoFar() time.Duration {
	return time.Since(fi.startTime)
}
