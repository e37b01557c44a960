package inflater

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mongodb-labs/data-inflater/contextplus"
	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/mongodb-labs/data-inflater/msync"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Phase is the step of the run that the inflater is in.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhasePreparing   Phase = "preparing"
	PhaseProfiling   Phase = "profiling"
	PhasePreSplit    Phase = "presplitting"
	PhaseBalancing   Phase = "balancing"
	PhaseCopying     Phase = "copying"
	PhaseSummarizing Phase = "summarizing"
	PhaseDone        Phase = "done"
)

// ErrAbortRequested is the cause of dispatch cancellation after Abort.
var ErrAbortRequested = errors.New("abort requested")

// Snapshot is the inflater's externally visible state.
type Snapshot struct {
	RunID    string          `json:"runID"`
	Phase    Phase           `json:"phase"`
	Progress ProgressEvent   `json:"progress"`
	InFlight []InFlightBatch `json:"inFlight"`
}

// JobJournal is a Journal that can also discard a job's history.
type JobJournal interface {
	Journal
	Forget(ctx context.Context, fingerprint string) error
}

// Inflater runs an InflationJob from start to finish.
type Inflater struct {
	job         InflationJob
	backend     Backend
	logger      *logger.Logger
	reporter    Reporter
	journal     JobJournal
	runID       string
	phase       *msync.TypedAtomic[Phase]
	coordinator *Coordinator
	sourceCount int64

	abortOnce sync.Once
	abortChan chan struct{}
}

// New returns an Inflater for the given job. The job's unset tunables
// take their defaults.
func New(job InflationJob, backend Backend, parentLogger *logger.Logger, reporter Reporter) *Inflater {
	job = job.WithDefaults()
	runID := uuid.New().String()
	runLogger := logger.NewSubLogger(parentLogger, "runID", runID)

	inf := &Inflater{
		job:       job,
		backend:   backend,
		logger:    runLogger,
		reporter:  reporter,
		runID:     runID,
		phase:     msync.NewTypedAtomic(PhaseIdle),
		abortChan: make(chan struct{}),
	}

	worker := NewWorker(backend, runLogger, job)
	inf.coordinator = NewCoordinator(runLogger, reporter, job.Concurrency, nil)
	inf.coordinator.runBatch = func(ctx context.Context, task BatchTask) BatchResult {
		return worker.Run(ctx, task, inf.sourceCount)
	}

	return inf
}

// WithJournal makes the run resumable through the given journal.
func (inf *Inflater) WithJournal(journal JobJournal) *Inflater {
	inf.journal = journal
	inf.coordinator.WithJournal(journal, inf.job.Fingerprint())

	return inf
}

// Job returns the job, with defaults applied.
func (inf *Inflater) Job() InflationJob {
	return inf.job
}

func (inf *Inflater) RunID() string {
	return inf.runID
}

// Abort stops the dispatch of new batches. Batches in flight finish.
func (inf *Inflater) Abort() {
	inf.abortOnce.Do(func() {
		inf.logger.Info().Msg("Abort requested.")
		close(inf.abortChan)
	})
}

// Snapshot returns the run's current state.
func (inf *Inflater) Snapshot() Snapshot {
	return Snapshot{
		RunID:    inf.runID,
		Phase:    inf.phase.Load(),
		Progress: inf.coordinator.Progress(),
		InFlight: inf.coordinator.Tracker().Snapshot(),
	}
}

// Run executes the job: it checks the configuration and connectivity,
// prepares (and optionally shards and pre-splits) the target, then copies
// every batch. Errors that prevent copying are returned; batch failures
// are part of the JobResult instead.
func (inf *Inflater) Run(ctx context.Context) (JobResult, error) {
	job := inf.job

	if err := job.Validate(); err != nil {
		return JobResult{}, err
	}

	// Abort stops dispatch only. Preparation runs to completion so that
	// the target is never left half sharded.
	dispatchCtx, cancel := contextplus.WithCancelCause(ctx)
	defer cancel(nil)

	select {
	case <-inf.abortChan:
		cancel(ErrAbortRequested)
	default:
	}

	go func() {
		select {
		case <-inf.abortChan:
			cancel(ErrAbortRequested)
		case <-dispatchCtx.Done():
		}
	}()

	tasks, err := PlanBatches(job.TargetCount, job.BatchSize)
	if err != nil {
		return JobResult{}, err
	}

	inf.phase.Store(PhasePreparing)

	if err := inf.backend.Ping(ctx); err != nil {
		return JobResult{}, ConnectivityError{err}
	}

	sourceCount, err := inf.backend.CountDocuments(ctx, job.Source)
	if err != nil {
		return JobResult{}, ConnectivityError{
			errors.Wrapf(err, "failed to count documents in %#q", job.Source.String()),
		}
	}

	if sourceCount == 0 {
		cause := errors.Errorf("source collection %#q is empty", job.Source.String())
		if job.IsSharded() {
			return JobResult{}, ProfilingError{Field: job.ShardKey[0], cause: cause}
		}

		return JobResult{}, ConfigError{cause}
	}

	inf.sourceCount = sourceCount

	inf.logger.Info().
		Str("source", job.Source.String()).
		Str("target", job.Target.String()).
		Int64("sourceCount", sourceCount).
		Int64("targetCount", job.TargetCount).
		Int("batches", len(tasks)).
		Int("concurrency", job.Concurrency).
		Msg("Starting inflation.")

	if err := inf.prepareTarget(ctx); err != nil {
		return JobResult{}, err
	}

	if job.IsSharded() {
		if err := inf.shardTarget(ctx); err != nil {
			return JobResult{}, err
		}
	}

	inf.phase.Store(PhaseCopying)

	result, _ := inf.coordinator.Run(dispatchCtx, tasks)
	result.RunID = inf.runID

	inf.phase.Store(PhaseSummarizing)
	result.Stats = inf.gatherStats(context.WithoutCancel(ctx))

	inf.logger.Info().
		Str("state", string(result.State)).
		Int("batchesDone", result.BatchesDone).
		Int("batchesFailed", result.BatchesFailed).
		Int64("documentsWritten", result.DocumentsWritten).
		Stringer("elapsed", result.Elapsed).
		Msg("Inflation finished.")

	if inf.reporter != nil {
		inf.reporter.Finish(result)
	}

	inf.phase.Store(PhaseDone)

	return result, nil
}

func (inf *Inflater) prepareTarget(ctx context.Context) error {
	job := inf.job

	if job.DropTarget && inf.journal != nil {
		if err := inf.journal.Forget(ctx, job.Fingerprint()); err != nil {
			return errors.Wrap(err, "failed to clear the journal for the dropped target")
		}
	}

	err := inf.backend.PrepareTarget(ctx, job.Target, TargetOptions{
		Drop:        job.DropTarget,
		Compression: job.Compression,
	})

	return errors.Wrapf(err, "failed to prepare target %#q", job.Target.String())
}

// shardTarget profiles the source, then shards and pre-splits the target.
// It returns only after the target's chunks exist, so no batch can be
// written before then.
func (inf *Inflater) shardTarget(ctx context.Context) error {
	job := inf.job

	inf.phase.Store(PhaseProfiling)

	profiler := NewProfiler(inf.backend, inf.logger, job.SampleSize, job.BucketCap)
	sample, err := profiler.Profile(ctx, job.Source, job.ShardKey[0])
	if err != nil {
		return err
	}

	inf.phase.Store(PhasePreSplit)

	splitter := NewPreSplitter(inf.backend, inf.logger, job.BucketCap, job.DocsPerChunk)
	points := splitter.Plan(sample, job.TargetCount)

	if err := splitter.Apply(ctx, job.Target, job.ShardKey, points); err != nil {
		return err
	}

	if !job.WaitForBalance || len(points) == 0 {
		return nil
	}

	inf.phase.Store(PhaseBalancing)

	waiter := NewBalanceWaiter(
		inf.backend,
		inf.logger,
		job.BalancePollInterval,
		job.BalanceTimeout,
		job.BalanceMaxSpread,
	)

	_, err = waiter.Wait(ctx, job.Target)

	return err
}

func (inf *Inflater) gatherStats(ctx context.Context) []CollectionStats {
	return lo.FilterMap(
		[]mmongo.Namespace{inf.job.Source, inf.job.Target},
		func(ns mmongo.Namespace, _ int) (CollectionStats, bool) {
			stats, err := inf.backend.CollectionStats(ctx, ns)
			if err != nil {
				inf.logger.Warn().
					Err(err).
					Str("namespace", ns.String()).
					Msg("Failed to read collection statistics.")

				return CollectionStats{}, false
			}

			return stats, true
		},
	)
}
