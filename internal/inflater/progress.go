package inflater

import (
	"time"
)

// JobState is the inflation job's state.
type JobState string

const (
	JobRunning         JobState = "running"
	JobCompleted       JobState = "completed"
	JobPartiallyFailed JobState = "partially_failed"

	// JobAborted means dispatch stopped early with nothing failed.
	JobAborted JobState = "aborted"
)

// ProgressEvent is a point-in-time view of the job's progress. The
// coordinator emits these in order, one per finished batch.
type ProgressEvent struct {
	BatchesTotal     int           `json:"batchesTotal"`
	BatchesDone      int           `json:"batchesDone"`
	BatchesFailed    int           `json:"batchesFailed"`
	BatchesInFlight  int           `json:"batchesInFlight"`
	DocumentsWritten int64         `json:"documentsWritten"`
	DocumentsTarget  int64         `json:"documentsTarget"`
	Elapsed          time.Duration `json:"elapsed"`
}

// FailedBatch describes one batch that ended in failure.
type FailedBatch struct {
	Index    int    `json:"index"`
	Count    int64  `json:"count"`
	Attempts int    `json:"attempts"`
	LastErr  string `json:"lastError"`
	Fatal    bool   `json:"fatal"`
}

// JobResult is the job's final outcome.
type JobResult struct {
	RunID            string        `json:"runID"`
	State            JobState      `json:"state"`
	BatchesTotal     int           `json:"batchesTotal"`
	BatchesDone      int           `json:"batchesDone"`
	BatchesFailed    int           `json:"batchesFailed"`
	BatchesSkipped   int           `json:"batchesSkipped"`
	BatchesPending   int           `json:"batchesPending"`
	DocumentsWritten int64         `json:"documentsWritten"`
	Elapsed          time.Duration `json:"elapsed"`
	FailedBatches    []FailedBatch `json:"failedBatches"`

	// Stats holds the source's and target's storage statistics when they
	// could be gathered.
	Stats []CollectionStats `json:"-"`
}

// Reporter presents progress to the user.
type Reporter interface {
	Progress(ProgressEvent)
	Finish(JobResult)
}
