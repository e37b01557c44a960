package inflater

import (
	"context"
	"slices"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/mongodb-labs/data-inflater/mtime"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Once the spread is within the limit, the waiter polls a few more times
// while it is at least this large, hoping for a tighter balance.
const (
	convergenceSpread   = 2
	maxConvergencePolls = 3
)

// BalanceWaiter waits for the balancer to spread a pre-split target's
// chunks across the shards.
type BalanceWaiter struct {
	backend      Backend
	logger       *logger.Logger
	pollInterval time.Duration
	timeout      time.Duration
	maxSpread    int
}

func NewBalanceWaiter(
	backend Backend,
	logger *logger.Logger,
	pollInterval, timeout time.Duration,
	maxSpread int,
) *BalanceWaiter {
	return &BalanceWaiter{
		backend:      backend,
		logger:       logger,
		pollInterval: pollInterval,
		timeout:      timeout,
		maxSpread:    maxSpread,
	}
}

// Wait polls ns's per-shard chunk counts until the difference between the
// largest and smallest is within the limit. It returns whether that
// happened; running out of time only logs a warning.
func (bw *BalanceWaiter) Wait(ctx context.Context, ns mmongo.Namespace) (bool, error) {
	start := time.Now()
	convergencePolls := 0
	warned := false

	for {
		counts, err := bw.backend.ChunkCountsByShard(ctx, ns)
		if err != nil {
			return false, errors.Wrapf(err, "failed to count %#q's chunks per shard", ns.String())
		}

		spread := chunkSpread(counts)

		if spread <= bw.maxSpread {
			if spread >= convergenceSpread && convergencePolls < maxConvergencePolls {
				convergencePolls++
			} else {
				bw.logger.Info().
					Str("namespace", ns.String()).
					Int("shards", len(counts)).
					Int("chunkCountSpread", spread).
					Msg("Pre-split chunks are balanced.")

				return true, nil
			}
		}

		if !warned {
			bw.logger.Info().
				Str("namespace", ns.String()).
				Int("chunkCountSpread", spread).
				Msg("Waiting for pre-split chunks to balance across shards. This may take a few minutes.")
			warned = true
		}

		if err := mtime.Sleep(ctx, bw.pollInterval); err != nil {
			return false, errors.Wrap(err, "interrupted while waiting for chunks to balance")
		}

		if time.Since(start) >= bw.timeout {
			bw.logger.Warn().
				Str("namespace", ns.String()).
				Stringer("timeout", bw.timeout).
				Int("chunkCountSpread", spread).
				Msg("Gave up waiting for chunks to balance. Cluster performance may suffer for a while.")

			return false, nil
		}
	}
}

func chunkSpread(counts map[string]int) int {
	if len(counts) == 0 {
		return 0
	}

	values := lo.Values(counts)

	return slices.Max(values) - slices.Min(values)
}
