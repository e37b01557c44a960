package inflater

import (
	"slices"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/internal/util"
	"github.com/mongodb-labs/data-inflater/msync"
	"github.com/samber/lo"
)

// InFlightBatch describes a batch that a worker is running.
type InFlightBatch struct {
	Worker    int       `json:"worker"`
	Index     int       `json:"index"`
	Count     int64     `json:"count"`
	StartTime time.Time `json:"startTime"`
}

type inFlightMap = map[int]InFlightBatch

// InFlightTracker records which batch each worker is running.
type InFlightTracker struct {
	guard  *msync.DataGuard[inFlightMap]
	limit  int
	logger *logger.Logger
}

func NewInFlightTracker(logger *logger.Logger, limit int) *InFlightTracker {
	return &InFlightTracker{
		guard:  msync.NewDataGuard(inFlightMap{}),
		limit:  limit,
		logger: logger,
	}
}

// Start records that the given worker began the given task.
func (t *InFlightTracker) Start(workerNum int, task BatchTask) {
	t.guard.Store(func(m inFlightMap) inFlightMap {
		util.Invariant(
			t.logger,
			len(m) < t.limit,
			"worker %d started batch %d with %d batch(es) already in flight (limit: %d)",
			workerNum,
			task.Index,
			len(m),
			t.limit,
		)

		m[workerNum] = InFlightBatch{
			Worker:    workerNum,
			Index:     task.Index,
			Count:     task.Count,
			StartTime: time.Now(),
		}

		return m
	})
}

// Finish records that the given worker is idle.
func (t *InFlightTracker) Finish(workerNum int) {
	t.guard.Store(func(m inFlightMap) inFlightMap {
		delete(m, workerNum)

		return m
	})
}

// Count returns how many batches are in flight.
func (t *InFlightTracker) Count() int {
	var count int
	t.guard.Load(func(m inFlightMap) {
		count = len(m)
	})

	return count
}

// Snapshot returns the in-flight batches, ordered by worker.
func (t *InFlightTracker) Snapshot() []InFlightBatch {
	var batches []InFlightBatch
	t.guard.Load(func(m inFlightMap) {
		batches = lo.Values(m)
	})

	slices.SortFunc(batches, func(a, b InFlightBatch) int {
		return a.Worker - b.Worker
	})

	return batches
}
