// Package contextplus wraps the standard library's cancellation and
// expiry functions so that a context's Err() carries its cause along with
// Canceled or DeadlineExceeded. Callers must use errors.Is or errors.As on
// that Err(); equality against context.Canceled no longer holds.
//
// Exported functions elsewhere should still accept a context.Context.
package contextplus

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// WithCancelCause is context.WithCancelCause, but the returned context's
// Err() includes the cause.
func WithCancelCause(ctx context.Context) (*C, context.CancelCauseFunc) {
	//nolint:gocritic
	newCtx, cancel := context.WithCancelCause(ctx)
	return New(newCtx), cancel
}

// WithTimeoutCause is context.WithTimeoutCause, but the returned context's
// Err() includes the cause, which names the timeout.
func WithTimeoutCause(
	ctx context.Context,
	timeout time.Duration,
	cause error,
) (*C, context.CancelFunc) {
	wrappedCause := errors.Wrapf(cause, "timed out after %s", timeout)
	//nolint:gocritic
	newCtx, cancel := context.WithTimeoutCause(ctx, timeout, wrappedCause)
	return New(newCtx), cancel
}

// ErrGroup is errgroup.WithContext with this package's context.
func ErrGroup(ctx context.Context) (*errgroup.Group, *C) {
	//nolint:gocritic
	group, groupCtx := errgroup.WithContext(ctx)

	return group, New(groupCtx)
}
