package inflater

import (
	"context"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/msync"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Journal remembers which batches of a job have finished, so that a
// re-run can skip them.
type Journal interface {
	DoneBatches(ctx context.Context, fingerprint string) (map[int]int64, error)
	RecordDone(ctx context.Context, fingerprint string, index int, written int64) error
}

// BatchRunner runs one batch to its terminal state.
type BatchRunner func(ctx context.Context, task BatchTask) BatchResult

// Coordinator feeds batch tasks to a fixed pool of workers and owns all of
// the job's aggregate state.
type Coordinator struct {
	logger      *logger.Logger
	reporter    Reporter
	concurrency int
	runBatch    BatchRunner
	tracker     *InFlightTracker
	progress    *msync.TypedAtomic[ProgressEvent]

	journal     Journal
	fingerprint string
}

func NewCoordinator(
	logger *logger.Logger,
	reporter Reporter,
	concurrency int,
	runBatch BatchRunner,
) *Coordinator {
	return &Coordinator{
		logger:      logger,
		reporter:    reporter,
		concurrency: concurrency,
		runBatch:    runBatch,
		tracker:     NewInFlightTracker(logger, concurrency),
		progress:    msync.NewTypedAtomic(ProgressEvent{}),
	}
}

// WithJournal makes the coordinator skip batches that the journal records
// as done for the given job fingerprint, and record newly done ones.
func (c *Coordinator) WithJournal(journal Journal, fingerprint string) *Coordinator {
	c.journal = journal
	c.fingerprint = fingerprint

	return c
}

// Tracker returns the coordinator's in-flight batch tracker.
func (c *Coordinator) Tracker() *InFlightTracker {
	return c.tracker
}

// Progress returns the most recent progress event.
func (c *Coordinator) Progress() ProgressEvent {
	return c.progress.Load()
}

// Run dispatches the given tasks until all of them finish or ctx is
// canceled. Cancellation stops dispatch only: batches already in flight
// run on a context detached from ctx and finish normally.
//
// Tasks must be indexed by position, as PlanBatches returns them. The
// returned tasks reflect each task's terminal status.
func (c *Coordinator) Run(ctx context.Context, tasks []BatchTask) (JobResult, []BatchTask) {
	start := time.Now()
	tasks = append([]BatchTask(nil), tasks...)

	result := JobResult{
		State:        JobRunning,
		BatchesTotal: len(tasks),
	}

	target := lo.SumBy(tasks, func(t BatchTask) int64 { return t.Count })

	workCtx := context.WithoutCancel(ctx)

	c.skipJournaledTasks(workCtx, tasks, &result)

	pending := lo.FilterMap(tasks, func(t BatchTask, i int) (int, bool) {
		return i, t.Status == TaskPending
	})

	taskChan := make(chan BatchTask)
	resultChan := make(chan BatchResult)

	var eg errgroup.Group
	for workerNum := range c.concurrency {
		eg.Go(func() error {
			for task := range taskChan {
				c.tracker.Start(workerNum, task)
				res := c.runBatch(workCtx, task)
				c.tracker.Finish(workerNum)

				resultChan <- res
			}

			return nil
		})
	}

	c.progress.Store(ProgressEvent{
		BatchesTotal:     result.BatchesTotal,
		BatchesDone:      result.BatchesDone,
		DocumentsWritten: result.DocumentsWritten,
		DocumentsTarget:  target,
	})

	doneChan := ctx.Done()
	stopped := ctx.Err() != nil
	inFlight := 0
	next := 0

	for (!stopped && next < len(pending)) || inFlight > 0 {
		var sendChan chan BatchTask
		var nextTask BatchTask

		if !stopped && next < len(pending) {
			sendChan = taskChan
			nextTask = tasks[pending[next]]
		}

		select {
		case sendChan <- nextTask:
			tasks[nextTask.Index].Status = TaskRunning
			next++
			inFlight++
		case res := <-resultChan:
			inFlight--
			c.applyResult(workCtx, tasks, res, &result)
			c.emitProgress(result, inFlight, target, start)
		case <-doneChan:
			stopped = true
			doneChan = nil

			c.logger.Info().
				Int("batchesInFlight", inFlight).
				Int("batchesNotStarted", len(pending)-next).
				Msg("Stopped dispatching batches. Waiting for in-flight batches to finish.")
		}
	}

	close(taskChan)
	_ = eg.Wait()

	result.BatchesPending = len(pending) - next
	result.Elapsed = time.Since(start)
	result.State = decideState(result)
	result.FailedBatches = lo.FilterMap(tasks, func(t BatchTask, _ int) (FailedBatch, bool) {
		return failedBatchOf(t), t.Status == TaskFailed
	})

	return result, tasks
}

func (c *Coordinator) skipJournaledTasks(ctx context.Context, tasks []BatchTask, result *JobResult) {
	if c.journal == nil {
		return
	}

	done, err := c.journal.DoneBatches(ctx, c.fingerprint)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Msg("Failed to read the journal. All batches will run.")

		return
	}

	for i, task := range tasks {
		written, isDone := done[task.Index]
		if !isDone {
			continue
		}

		tasks[i].Status = TaskDone
		tasks[i].Skipped = true
		result.BatchesDone++
		result.BatchesSkipped++
		result.DocumentsWritten += written
	}

	if result.BatchesSkipped > 0 {
		c.logger.Info().
			Int("batchesSkipped", result.BatchesSkipped).
			Int64("documentsSkipped", result.DocumentsWritten).
			Msg("Skipping batches that a previous run finished.")
	}
}

func (c *Coordinator) applyResult(ctx context.Context, tasks []BatchTask, res BatchResult, result *JobResult) {
	task := &tasks[res.Index]
	task.Attempts = res.Attempts
	task.LastErr = res.Err
	task.Fatal = res.Fatal

	if res.Err != nil {
		task.Status = TaskFailed
		result.BatchesFailed++

		return
	}

	task.Status = TaskDone
	result.BatchesDone++
	result.DocumentsWritten += res.Written

	if c.journal != nil {
		err := c.journal.RecordDone(ctx, c.fingerprint, res.Index, res.Written)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Int("batch", res.Index).
				Msg("Failed to journal a finished batch. A re-run will repeat it.")
		}
	}
}

func (c *Coordinator) emitProgress(result JobResult, inFlight int, target int64, start time.Time) {
	event := ProgressEvent{
		BatchesTotal:     result.BatchesTotal,
		BatchesDone:      result.BatchesDone,
		BatchesFailed:    result.BatchesFailed,
		BatchesInFlight:  inFlight,
		DocumentsWritten: result.DocumentsWritten,
		DocumentsTarget:  target,
		Elapsed:          time.Since(start),
	}

	c.progress.Store(event)

	if c.reporter != nil {
		c.reporter.Progress(event)
	}
}

func decideState(result JobResult) JobState {
	switch {
	case result.BatchesFailed > 0:
		return JobPartiallyFailed
	case result.BatchesPending > 0:
		return JobAborted
	default:
		return JobCompleted
	}
}

func failedBatchOf(task BatchTask) FailedBatch {
	fb := FailedBatch{
		Index:    task.Index,
		Count:    task.Count,
		Attempts: task.Attempts,
	}

	if task.LastErr != nil {
		fb.LastErr = task.LastErr.Error()
		fb.Fatal = task.Fatal
	}

	return fb
}
