package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/inflater"
	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/internal/reportutils"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// DefaultLogInterval is the least time between two progress lines.
const DefaultLogInterval = 10 * time.Second

// Reporter logs progress lines and writes a summary once the job ends.
type Reporter struct {
	logger      *logger.Logger
	out         io.Writer
	logInterval time.Duration

	mux     sync.Mutex
	lastLog time.Time
}

var _ inflater.Reporter = &Reporter{}

// New returns a Reporter that logs to the given logger and writes its
// summary to out.
func New(logger *logger.Logger, out io.Writer) *Reporter {
	return &Reporter{
		logger:      logger,
		out:         out,
		logInterval: DefaultLogInterval,
	}
}

// WithLogInterval sets the least time between two progress lines. The
// first and last events of a job are always logged.
func (r *Reporter) WithLogInterval(interval time.Duration) *Reporter {
	r.logInterval = interval
	return r
}

func (r *Reporter) Progress(event inflater.ProgressEvent) {
	r.mux.Lock()
	defer r.mux.Unlock()

	finished := event.BatchesDone+event.BatchesFailed == event.BatchesTotal
	if !finished && !r.lastLog.IsZero() && time.Since(r.lastLog) < r.logInterval {
		return
	}

	r.lastLog = time.Now()

	r.logger.Info().
		Str("batches", fmt.Sprintf(
			"%s of %s",
			reportutils.FmtCount(event.BatchesDone),
			reportutils.FmtCount(event.BatchesTotal),
		)).
		Int("batchesFailed", event.BatchesFailed).
		Int("batchesInFlight", event.BatchesInFlight).
		Str("documents", fmt.Sprintf(
			"%s of %s (%s%%)",
			reportutils.FmtCount(event.DocumentsWritten),
			reportutils.FmtCount(event.DocumentsTarget),
			reportutils.FmtPercent(event.DocumentsWritten, max(event.DocumentsTarget, 1)),
		)).
		Str("docsPerSecond", reportutils.FmtRate(event.DocumentsWritten, event.Elapsed)).
		Str("elapsed", reportutils.DurationToHMS(event.Elapsed)).
		Msg("Inflation progress.")
}

// Finish writes the job's summary.
func (r *Reporter) Finish(result inflater.JobResult) {
	if _, err := io.WriteString(r.out, Summarize(result)); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to write summary.")
	}
}

// Summarize renders the job's final outcome for a terminal.
func Summarize(result inflater.JobResult) string {
	strBuilder := &strings.Builder{}

	fmt.Fprintf(strBuilder, "\nRun %s %s.\n", result.RunID, describeState(result.State))

	table := tablewriter.NewWriter(strBuilder)
	table.SetHeader([]string{"Batches", "Succeeded", "Failed", "Skipped", "Not Run", "Documents Written", "Elapsed"})
	table.Append([]string{
		reportutils.FmtCount(result.BatchesTotal),
		reportutils.FmtCount(result.BatchesDone - result.BatchesSkipped),
		reportutils.FmtCount(result.BatchesFailed),
		reportutils.FmtCount(result.BatchesSkipped),
		reportutils.FmtCount(result.BatchesPending),
		reportutils.FmtCount(result.DocumentsWritten),
		reportutils.DurationToHMS(result.Elapsed),
	})
	table.Render()

	if len(result.FailedBatches) > 0 {
		strBuilder.WriteString("\nFailed batches:\n")

		failedTable := tablewriter.NewWriter(strBuilder)
		failedTable.SetHeader([]string{"Index", "Documents", "Attempts", "Last Error"})
		failedTable.SetAutoWrapText(false)

		for _, fb := range result.FailedBatches {
			lastErr := fb.LastErr
			if fb.Fatal {
				lastErr = "(fatal) " + lastErr
			}

			failedTable.Append([]string{
				fmt.Sprintf("%d", fb.Index),
				reportutils.FmtCount(fb.Count),
				fmt.Sprintf("%d", fb.Attempts),
				lastErr,
			})
		}
		failedTable.Render()
	}

	if len(result.Stats) > 0 {
		strBuilder.WriteString("\nCollection statistics:\n")

		statsTable := tablewriter.NewWriter(strBuilder)
		statsTable.SetHeader([]string{"Namespace", "Sharded", "Count", "Avg Doc Size", "Data Size", "Index Size", "Total Size"})

		for _, stats := range result.Stats {
			statsTable.Append([]string{
				stats.Namespace.String(),
				lo.Ternary(stats.Sharded, "yes", "no"),
				reportutils.FmtCount(stats.Count),
				reportutils.FmtBytes(stats.AvgObjSize),
				reportutils.FmtBytes(stats.Size),
				reportutils.FmtBytes(stats.TotalIndexSize),
				reportutils.FmtBytes(stats.TotalSize),
			})
		}
		statsTable.Render()
	}

	return strBuilder.String()
}

func describeState(state inflater.JobState) string {
	switch state {
	case inflater.JobCompleted:
		return "completed"
	case inflater.JobPartiallyFailed:
		return "finished with failed batches"
	case inflater.JobAborted:
		return "was aborted before all batches ran"
	default:
		return "is " + string(state)
	}
}
