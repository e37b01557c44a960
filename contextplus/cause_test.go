package contextplus

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

func (s *UnitTestSuite) TestCancelCause() {
	for _, cause := range []error{
		fmt.Errorf("abort requested"),
		errors.Wrap(context.Canceled, "abort requested"),
	} {
		ctx, cancel := WithCancelCause(context.Background())
		s.Assert().NoError(ctx.Err(), "not yet canceled")

		cancel(cause)

		s.Assert().ErrorIs(ctx.Err(), context.Canceled)
		s.Assert().ErrorIs(ctx.Err(), cause)
		s.Assert().ErrorIs(context.Cause(ctx), cause)
	}
}

func (s *UnitTestSuite) TestTimeoutCause() {
	cause := fmt.Errorf("disconnecting")
	timeout := -1 * time.Nanosecond

	ctx, cancel := WithTimeoutCause(context.Background(), timeout, cause)
	defer cancel()

	s.Assert().ErrorIs(ctx.Err(), context.DeadlineExceeded)
	s.Assert().ErrorIs(ctx.Err(), cause)
	s.Assert().ErrorContains(ctx.Err(), timeout.String())
}

func (s *UnitTestSuite) TestErrGroup() {
	eg, ctx := ErrGroup(context.Background())

	failure := fmt.Errorf("server failed")
	eg.Go(func() error { return failure })

	s.Assert().ErrorIs(eg.Wait(), failure)
	s.Assert().ErrorIs(ctx.Err(), context.Canceled)
	s.Assert().ErrorIs(ctx.Err(), failure)
}
