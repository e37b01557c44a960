package contextplus

import (
	"context"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/util"
)

// C is the concrete context type that this package returns. It wraps
// rather than embeds its context so that nothing reaches the inner Err()
// by accident.
type C struct {
	ctx context.Context
}

var _ context.Context = &C{}

// New upgrades ctx so that its Err() includes the cancellation cause.
func New(ctx context.Context) *C {
	return &C{ctx}
}

func (c *C) Deadline() (deadline time.Time, ok bool) {
	return c.ctx.Deadline()
}

func (c *C) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c *C) Value(key any) any {
	return c.ctx.Value(key)
}

// Err wraps the inner context's Err() with its cause.
func (c *C) Err() error {
	return util.WrapCtxErrWithCause(c.ctx)
}
