package inflater

import (
	"context"
	"strconv"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/internal/retry"
	"github.com/mongodb-labs/data-inflater/internal/util"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/pkg/errors"
)

// BatchResult is a worker's report of one batch's terminal state.
type BatchResult struct {
	Index    int
	Written  int64
	Attempts int
	Err      error

	// Fatal means the batch stopped before exhausting its attempts.
	Fatal    bool
	Duration time.Duration
}

// Worker runs batches, each as a single server-side pipeline.
type Worker struct {
	backend Backend
	logger  *logger.Logger
	source  mmongo.Namespace
	target  mmongo.Namespace
	retryer *retry.Retryer
}

func NewWorker(backend Backend, logger *logger.Logger, job InflationJob) *Worker {
	return &Worker{
		backend: backend,
		logger:  logger,
		source:  job.Source,
		target:  job.Target,
		retryer: retry.New().
			WithoutDurationLimit().
			WithMaxAttempts(job.RetryLimit).
			WithBackoff(job.MinBackoff, job.MaxBackoff).
			WithRetryable(isRetryableBatchError).
			WithDescription("inflate %#q into %#q", job.Source.String(), job.Target.String()),
	}
}

// Run executes one batch, retrying failed attempts with backoff until the
// batch succeeds, fails fatally, or runs out of attempts.
func (w *Worker) Run(ctx context.Context, task BatchTask, sourceCount int64) BatchResult {
	start := time.Now()

	spec := PipelineSpec{
		Source:      w.source,
		Target:      w.target,
		Count:       task.Count,
		SourceCount: sourceCount,
	}

	batchLogger := logger.NewSubLogger(w.logger, "batch", fmtBatch(task.Index))

	var attempts int
	var written int64

	err := w.retryer.Run(
		ctx,
		batchLogger,
		func(ctx context.Context, fi *retry.FuncInfo) error {
			attempts = fi.GetAttemptNumber() + 1

			n, err := w.backend.RunAggregationPipeline(ctx, spec)
			if err == nil {
				written = n
				return nil
			}

			if util.IsDuplicateKeyError(err) {
				return FatalError{Index: task.Index, cause: err}
			}

			return BatchError{Index: task.Index, Attempt: attempts, cause: err}
		},
	)

	result := BatchResult{
		Index:    task.Index,
		Written:  written,
		Attempts: attempts,
		Err:      err,
		Duration: time.Since(start),
	}

	if err != nil {
		result.Fatal = errors.As(err, &FatalError{}) || util.IsContextCanceledError(err)

		batchLogger.Warn().
			Err(err).
			Int("attempts", attempts).
			Bool("fatal", result.Fatal).
			Msg("Batch failed.")

		return result
	}

	batchLogger.Debug().
		Int64("written", written).
		Int("attempts", attempts).
		Stringer("duration", result.Duration).
		Msg("Batch done.")

	return result
}

func isRetryableBatchError(err error) bool {
	return !errors.As(err, &FatalError{})
}

func fmtBatch(index int) string {
	return strconv.Itoa(index)
}
