package util

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// WrapCtxErrWithCause returns ctx.Err() joined with ctx's cancellation
// cause, so that errors.Is still matches context.Canceled or
// context.DeadlineExceeded.
func WrapCtxErrWithCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	err := ctx.Err() //nolint:gocritic

	if cause == nil {
		return err
	}

	// A cause that already wraps the context error, e.g.
	// fmt.Errorf("abort requested (%w)", context.Canceled), stands alone.
	if errors.Is(cause, err) {
		return cause
	}

	// ctx may itself report its cause from Err().
	if errors.Is(err, cause) {
		return err
	}

	return fmt.Errorf("%w: %w", err, cause)
}
