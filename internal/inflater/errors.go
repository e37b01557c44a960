package inflater

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError means that the job's parameters are invalid or missing.
// The job never starts.
type ConfigError struct {
	cause error
}

func NewConfigError(msg string, args ...any) ConfigError {
	return ConfigError{cause: errors.Errorf(msg, args...)}
}

func (ce ConfigError) Error() string {
	return "invalid job configuration: " + ce.cause.Error()
}

func (ce ConfigError) Unwrap() error {
	return ce.cause
}

// ConnectivityError means that the database could not be reached.
type ConnectivityError struct {
	cause error
}

func (ce ConnectivityError) Error() string {
	return "cannot reach the database: " + ce.cause.Error()
}

func (ce ConnectivityError) Unwrap() error {
	return ce.cause
}

// ProfilingError means that the shard key's value distribution could not
// be learned from the source.
type ProfilingError struct {
	Field string
	cause error
}

func (pe ProfilingError) Error() string {
	return fmt.Sprintf("failed to profile shard key field %#q: %v", pe.Field, pe.cause)
}

func (pe ProfilingError) Unwrap() error {
	return pe.cause
}

// ShardSetupError means that sharding or pre-splitting the target failed
// in a way that re-running would not fix. No documents are copied after
// this error.
type ShardSetupError struct {
	cause error
}

func (se ShardSetupError) Error() string {
	return "failed to set up sharding on the target: " + se.cause.Error()
}

func (se ShardSetupError) Unwrap() error {
	return se.cause
}

// BatchError describes a single failed attempt to run a batch's pipeline.
type BatchError struct {
	Index   int
	Attempt int
	cause   error
}

func (be BatchError) Error() string {
	return fmt.Sprintf("batch %d attempt %d failed: %v", be.Index, be.Attempt, be.cause)
}

func (be BatchError) Unwrap() error {
	return be.cause
}

// FatalError is a batch failure that retrying cannot fix, such as a
// collision between a generated identifier and an existing document.
type FatalError struct {
	Index int
	cause error
}

func (fe FatalError) Error() string {
	return fmt.Sprintf("batch %d failed fatally: %v", fe.Index, fe.cause)
}

func (fe FatalError) Unwrap() error {
	return fe.cause
}
