package inflater

// TaskStatus is a BatchTask's place in its lifecycle:
// pending → running → {done, failed}.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// BatchTask is one unit of inflation work. Only the coordinator changes
// its status.
type BatchTask struct {
	Index    int
	Count    int64
	Status   TaskStatus
	Attempts int
	LastErr  error
	Fatal    bool

	// Skipped means a previous run already finished this batch.
	Skipped bool
}

// PlanBatches splits a target count into ceil(total/batchSize) pending
// tasks. Every task asks for batchSize documents except the last, which
// asks for the remainder, so the counts sum to exactly total.
func PlanBatches(total, batchSize int64) ([]BatchTask, error) {
	if total <= 0 {
		return nil, NewConfigError("target size must be positive (got %d)", total)
	}
	if batchSize <= 0 {
		return nil, NewConfigError("batch size must be positive (got %d)", batchSize)
	}

	n := (total + batchSize - 1) / batchSize
	tasks := make([]BatchTask, n)

	for i := range tasks {
		tasks[i] = BatchTask{
			Index:  i,
			Count:  batchSize,
			Status: TaskPending,
		}
	}

	tasks[n-1].Count = total - batchSize*(n-1)

	return tasks, nil
}
