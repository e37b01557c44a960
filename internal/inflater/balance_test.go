package inflater

import (
	"context"
	"time"
)

func (s *UnitTestSuite) TestBalanceWaiterConverges() {
	backend := newFakeBackend()
	backend.chunkCounts = []map[string]int{
		{"shard0": 10, "shard1": 0},
		{"shard0": 6, "shard1": 4},
		{"shard0": 5, "shard1": 5},
	}

	waiter := NewBalanceWaiter(backend, s.logger, time.Millisecond, time.Minute, 8)
	balanced, err := waiter.Wait(context.Background(), testTarget)

	s.Require().NoError(err)
	s.Assert().True(balanced)
	s.Assert().Equal(3, backend.chunkCountCall, "a spread of 2 earns another poll")
}

func (s *UnitTestSuite) TestBalanceWaiterLimitsConvergencePolls() {
	backend := newFakeBackend()
	backend.chunkCounts = []map[string]int{{"shard0": 6, "shard1": 4, "shard2": 5}}

	waiter := NewBalanceWaiter(backend, s.logger, time.Millisecond, time.Minute, 8)
	balanced, err := waiter.Wait(context.Background(), testTarget)

	s.Require().NoError(err)
	s.Assert().True(balanced)
	s.Assert().Equal(1+maxConvergencePolls, backend.chunkCountCall)
}

func (s *UnitTestSuite) TestBalanceWaiterTimesOut() {
	backend := newFakeBackend()
	backend.chunkCounts = []map[string]int{{"shard0": 20, "shard1": 0}}

	waiter := NewBalanceWaiter(backend, s.logger, time.Millisecond, 10*time.Millisecond, 8)
	balanced, err := waiter.Wait(context.Background(), testTarget)

	s.Require().NoError(err, "running out of time is only a warning")
	s.Assert().False(balanced)
}

func (s *UnitTestSuite) TestBalanceWaiterCanceled() {
	backend := newFakeBackend()
	backend.chunkCounts = []map[string]int{{"shard0": 20, "shard1": 0}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	waiter := NewBalanceWaiter(backend, s.logger, time.Hour, time.Hour, 8)
	_, err := waiter.Wait(ctx, testTarget)

	s.Assert().ErrorIs(err, context.Canceled)
}
