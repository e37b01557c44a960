package inflater

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/samber/lo"
)

// Compression is the block compressor that the target collection uses.
type Compression string

const (
	CompressionSnappy Compression = "snappy"
	CompressionZstd   Compression = "zstd"
	CompressionZlib   Compression = "zlib"
	CompressionNone   Compression = "none"
)

var validCompressions = []Compression{
	CompressionSnappy,
	CompressionZstd,
	CompressionZlib,
	CompressionNone,
}

const (
	DefaultBatchSize     = 50_000
	DefaultConcurrency   = 10
	DefaultRetryLimit    = 5
	DefaultSampleSize    = 10_000
	DefaultBucketCap     = 512
	DefaultDocsPerChunk  = 100_000
	DefaultMinBackoff    = time.Second
	DefaultMaxBackoff    = 16 * time.Second
	DefaultCompression   = CompressionSnappy
	DefaultBalancePoll   = 5 * time.Second
	DefaultBalanceWait   = 600 * time.Second
	DefaultBalanceSpread = 8
)

// InflationJob is the immutable description of one inflation run.
type InflationJob struct {
	Source mmongo.Namespace
	Target mmongo.Namespace

	// TargetCount is how many documents the job writes in total.
	TargetCount int64
	BatchSize   int64
	Concurrency int

	// ShardKey is the target's range shard key, in order. Only the first
	// field is profiled and split on. Empty means the target is left
	// unsharded.
	ShardKey []string

	// RetryLimit is the maximum number of attempts for each batch.
	RetryLimit int
	MinBackoff time.Duration
	MaxBackoff time.Duration

	SampleSize   int
	BucketCap    int
	DocsPerChunk int64

	Compression Compression
	DropTarget  bool

	WaitForBalance      bool
	BalancePollInterval time.Duration
	BalanceTimeout      time.Duration
	BalanceMaxSpread    int
}

// WithDefaults returns a copy of the job with every unset tunable set to
// its default. Required fields are left alone.
func (job InflationJob) WithDefaults() InflationJob {
	job.BatchSize = lo.Ternary(job.BatchSize == 0, DefaultBatchSize, job.BatchSize)
	job.Concurrency = lo.Ternary(job.Concurrency == 0, DefaultConcurrency, job.Concurrency)
	job.RetryLimit = lo.Ternary(job.RetryLimit == 0, DefaultRetryLimit, job.RetryLimit)
	job.MinBackoff = lo.Ternary(job.MinBackoff == 0, DefaultMinBackoff, job.MinBackoff)
	job.MaxBackoff = lo.Ternary(job.MaxBackoff == 0, DefaultMaxBackoff, job.MaxBackoff)
	job.SampleSize = lo.Ternary(job.SampleSize == 0, DefaultSampleSize, job.SampleSize)
	job.BucketCap = lo.Ternary(job.BucketCap == 0, DefaultBucketCap, job.BucketCap)
	job.DocsPerChunk = lo.Ternary(job.DocsPerChunk == 0, DefaultDocsPerChunk, job.DocsPerChunk)
	job.Compression = lo.Ternary(job.Compression == "", DefaultCompression, job.Compression)
	job.BalancePollInterval = lo.Ternary(job.BalancePollInterval == 0, DefaultBalancePoll, job.BalancePollInterval)
	job.BalanceTimeout = lo.Ternary(job.BalanceTimeout == 0, DefaultBalanceWait, job.BalanceTimeout)
	job.BalanceMaxSpread = lo.Ternary(job.BalanceMaxSpread == 0, DefaultBalanceSpread, job.BalanceMaxSpread)

	return job
}

// Validate returns a ConfigError if any field is missing or out of range.
func (job InflationJob) Validate() error {
	switch {
	case job.Source.DB == "" || job.Source.Coll == "":
		return NewConfigError("source namespace %#q is incomplete", job.Source.String())
	case job.Target.DB == "" || job.Target.Coll == "":
		return NewConfigError("target namespace %#q is incomplete", job.Target.String())
	case job.Source == job.Target:
		return NewConfigError("source and target are both %#q", job.Source.String())
	case job.TargetCount <= 0:
		return NewConfigError("target size must be positive (got %d)", job.TargetCount)
	case job.BatchSize <= 0:
		return NewConfigError("batch size must be positive (got %d)", job.BatchSize)
	case job.Concurrency <= 0:
		return NewConfigError("concurrency must be positive (got %d)", job.Concurrency)
	case job.RetryLimit <= 0:
		return NewConfigError("retry limit must be at least 1 attempt (got %d)", job.RetryLimit)
	case job.MinBackoff < 0 || job.MaxBackoff < job.MinBackoff:
		return NewConfigError("backoff bounds [%s, %s] are invalid", job.MinBackoff, job.MaxBackoff)
	case job.SampleSize <= 0:
		return NewConfigError("sample size must be positive (got %d)", job.SampleSize)
	case job.BucketCap < 1:
		return NewConfigError("bucket cap must be positive (got %d)", job.BucketCap)
	case job.DocsPerChunk <= 0:
		return NewConfigError("documents per chunk must be positive (got %d)", job.DocsPerChunk)
	case !lo.Contains(validCompressions, job.Compression):
		return NewConfigError(
			"compression %#q is not one of %v",
			job.Compression,
			validCompressions,
		)
	case job.WaitForBalance && (job.BalancePollInterval <= 0 || job.BalanceTimeout <= 0):
		return NewConfigError("balance wait needs a positive poll interval and timeout")
	}

	for i, field := range job.ShardKey {
		if strings.TrimSpace(field) == "" {
			return NewConfigError("shard key field #%d is empty", i+1)
		}
	}

	if len(lo.Uniq(job.ShardKey)) != len(job.ShardKey) {
		return NewConfigError("shard key %v repeats a field", job.ShardKey)
	}

	return nil
}

// IsSharded indicates whether the job shards the target.
func (job InflationJob) IsSharded() bool {
	return len(job.ShardKey) > 0
}

// Fingerprint identifies the job's output. Two runs with the same
// fingerprint plan identical batches into the same target, so a journal
// can carry batch outcomes from one to the other.
func (job InflationJob) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(
		h,
		"%s|%s|%d|%d|%s",
		job.Source,
		job.Target,
		job.TargetCount,
		job.BatchSize,
		strings.Join(job.ShardKey, ","),
	)

	return hex.EncodeToString(h.Sum(nil))[:16]
}
