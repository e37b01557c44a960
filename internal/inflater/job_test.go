package inflater

import (
	"time"

	"github.com/mongodb-labs/data-inflater/mmongo"
)

func validJob() InflationJob {
	return InflationJob{
		Source:      mmongo.Namespace{DB: "sample_mflix", Coll: "movies"},
		Target:      mmongo.Namespace{DB: "sample_mflix", Coll: "movies_big"},
		TargetCount: 1000,
	}.WithDefaults()
}

func (s *UnitTestSuite) TestJobDefaults() {
	job := validJob()

	s.Assert().EqualValues(DefaultBatchSize, job.BatchSize)
	s.Assert().Equal(DefaultConcurrency, job.Concurrency)
	s.Assert().Equal(DefaultRetryLimit, job.RetryLimit)
	s.Assert().Equal(DefaultSampleSize, job.SampleSize)
	s.Assert().Equal(DefaultBucketCap, job.BucketCap)
	s.Assert().EqualValues(DefaultDocsPerChunk, job.DocsPerChunk)
	s.Assert().Equal(time.Second, job.MinBackoff)
	s.Assert().Equal(16*time.Second, job.MaxBackoff)
	s.Assert().Equal(CompressionSnappy, job.Compression)

	s.Assert().NoError(job.Validate())

	custom := validJob()
	custom.BatchSize = 7
	s.Assert().EqualValues(7, custom.WithDefaults().BatchSize, "explicit values survive")
}

func (s *UnitTestSuite) TestJobValidate() {
	cases := map[string]func(*InflationJob){
		"no source":           func(j *InflationJob) { j.Source = mmongo.Namespace{} },
		"no target coll":      func(j *InflationJob) { j.Target.Coll = "" },
		"same namespace":      func(j *InflationJob) { j.Target = j.Source },
		"zero size":           func(j *InflationJob) { j.TargetCount = 0 },
		"negative batch":      func(j *InflationJob) { j.BatchSize = -1 },
		"negative workers":    func(j *InflationJob) { j.Concurrency = -2 },
		"negative retries":    func(j *InflationJob) { j.RetryLimit = -1 },
		"inverted backoff":    func(j *InflationJob) { j.MaxBackoff = j.MinBackoff / 2 },
		"bad compression":     func(j *InflationJob) { j.Compression = "lz4" },
		"empty shard field":   func(j *InflationJob) { j.ShardKey = []string{"region", " "} },
		"repeated shard key":  func(j *InflationJob) { j.ShardKey = []string{"a", "b", "a"} },
		"negative chunk docs": func(j *InflationJob) { j.DocsPerChunk = -1 },
	}

	for label, mutate := range cases {
		job := validJob()
		mutate(&job)

		s.Assert().ErrorAs(job.Validate(), &ConfigError{}, label)
	}
}

func (s *UnitTestSuite) TestJobFingerprint() {
	job := validJob()
	same := validJob()
	same.Concurrency = 99
	same.RetryLimit = 1

	s.Assert().Equal(job.Fingerprint(), same.Fingerprint(), "tunables do not change the output")

	bigger := validJob()
	bigger.TargetCount++
	s.Assert().NotEqual(job.Fingerprint(), bigger.Fingerprint())

	sharded := validJob()
	sharded.ShardKey = []string{"region"}
	s.Assert().NotEqual(job.Fingerprint(), sharded.Fingerprint())
}
