package inflater

import (
	"context"
	"time"

	"github.com/mongodb-labs/data-inflater/internal/retry"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	testSource = mmongo.Namespace{DB: "sample_mflix", Coll: "movies"}
	testTarget = mmongo.Namespace{DB: "sample_mflix", Coll: "movies_big"}
)

func fastJob(targetCount, batchSize int64) InflationJob {
	return InflationJob{
		Source:      testSource,
		Target:      testTarget,
		TargetCount: targetCount,
		BatchSize:   batchSize,
		MinBackoff:  time.Millisecond,
		MaxBackoff:  2 * time.Millisecond,
	}.WithDefaults()
}

func (s *UnitTestSuite) TestPipelineWithoutReplacement() {
	for _, count := range []int64{1, 5, 10} {
		spec := PipelineSpec{Source: testSource, Target: testTarget, Count: count, SourceCount: 10}

		s.Assert().False(spec.WithReplacement())
		s.Assert().EqualValues(1, spec.Passes())
		s.Assert().Equal(
			mongo.Pipeline{
				{{"$sample", bson.D{{"size", count}}}},
				{{"$unset", []string{"_id"}}},
				{{"$merge", bson.D{
					{"into", bson.D{{"db", "sample_mflix"}, {"coll", "movies_big"}}},
					{"whenMatched", "fail"},
					{"whenNotMatched", "insert"},
				}}},
			},
			spec.Pipeline(),
			"count %d",
			count,
		)
	}
}

func (s *UnitTestSuite) TestPipelineWithReplacement() {
	spec := PipelineSpec{Source: testSource, Target: testTarget, Count: 25, SourceCount: 10}

	s.Assert().True(spec.WithReplacement())
	s.Assert().EqualValues(3, spec.Passes())

	subSample := mongo.Pipeline{{{"$sample", bson.D{{"size", int64(10)}}}}}

	s.Assert().Equal(
		mongo.Pipeline{
			{{"$sample", bson.D{{"size", int64(10)}}}},
			{{"$unionWith", bson.D{{"coll", "movies"}, {"pipeline", subSample}}}},
			{{"$unionWith", bson.D{{"coll", "movies"}, {"pipeline", subSample}}}},
			{{"$limit", int64(25)}},
			{{"$unset", []string{"_id"}}},
			{{"$merge", bson.D{
				{"into", bson.D{{"db", "sample_mflix"}, {"coll", "movies_big"}}},
				{"whenMatched", "fail"},
				{"whenNotMatched", "insert"},
			}}},
		},
		spec.Pipeline(),
	)

	exact := PipelineSpec{Count: 20, SourceCount: 10}
	s.Assert().EqualValues(2, exact.Passes())
}

func (s *UnitTestSuite) TestWorkerSucceedsAfterRetries() {
	backend := newFakeBackend()
	backend.seed(testSource, "x", 1, 2, 3)

	failures := 0
	backend.pipelineErr = func(PipelineSpec) error {
		if failures < 2 {
			failures++
			return errors.New("transient blip")
		}

		return nil
	}

	worker := NewWorker(backend, s.logger, fastJob(10, 5))
	res := worker.Run(context.Background(), BatchTask{Index: 4, Count: 5}, 3)

	s.Require().NoError(res.Err)
	s.Assert().Equal(4, res.Index)
	s.Assert().Equal(3, res.Attempts)
	s.Assert().EqualValues(5, res.Written)
	s.Assert().False(res.Fatal)
	s.Assert().Len(backend.docs(testTarget), 5)
}

func (s *UnitTestSuite) TestWorkerExhaustsAttempts() {
	backend := newFakeBackend()
	backend.seed(testSource, "x", 1)
	backend.pipelineErr = func(PipelineSpec) error { return errors.New("always down") }

	job := fastJob(10, 5)
	job.RetryLimit = 3

	res := NewWorker(backend, s.logger, job).Run(context.Background(), BatchTask{Index: 7, Count: 5}, 1)

	s.Require().Error(res.Err)
	s.Assert().Equal(3, res.Attempts)
	s.Assert().False(res.Fatal)
	s.Assert().ErrorAs(res.Err, &retry.AttemptsExhaustedErr{})

	var batchErr BatchError
	s.Require().ErrorAs(res.Err, &batchErr)
	s.Assert().Equal(7, batchErr.Index)
	s.Assert().Equal(3, batchErr.Attempt)
}

func (s *UnitTestSuite) TestWorkerRetriesAreBoundedOnlyByAttempts() {
	backend := newFakeBackend()
	backend.seed(testSource, "x", 1)
	backend.pipelineDelay = 5 * time.Millisecond
	backend.pipelineErr = func(PipelineSpec) error { return errors.New("slow and down") }

	job := fastJob(10, 5)
	job.RetryLimit = 5

	worker := NewWorker(backend, s.logger, job)
	s.Assert().True(worker.retryer.DurationLimit().IsNone())

	res := worker.Run(context.Background(), BatchTask{Index: 2, Count: 5}, 1)

	s.Require().Error(res.Err)
	s.Assert().Equal(5, res.Attempts)
	s.Assert().ErrorAs(res.Err, &retry.AttemptsExhaustedErr{})
}

func (s *UnitTestSuite) TestWorkerDuplicateKeyIsFatal() {
	backend := newFakeBackend()
	backend.seed(testSource, "x", 1)
	backend.pipelineErr = func(PipelineSpec) error {
		return mongo.CommandError{Code: 11000, Message: "E11000 duplicate key error"}
	}

	res := NewWorker(backend, s.logger, fastJob(10, 5)).Run(
		context.Background(),
		BatchTask{Index: 1, Count: 5},
		1,
	)

	s.Require().Error(res.Err)
	s.Assert().True(res.Fatal)
	s.Assert().Equal(1, res.Attempts, "collisions are not retried")
	s.Assert().ErrorAs(res.Err, &FatalError{})
}

func (s *UnitTestSuite) TestWorkerCanceledDuringBackoff() {
	backend := newFakeBackend()
	backend.seed(testSource, "x", 1)

	ctx, cancel := context.WithCancel(context.Background())
	backend.pipelineErr = func(PipelineSpec) error {
		cancel()
		return errors.New("fails")
	}

	job := fastJob(10, 5)
	job.MinBackoff = time.Hour
	job.MaxBackoff = time.Hour

	res := NewWorker(backend, s.logger, job).Run(ctx, BatchTask{Index: 0, Count: 5}, 1)

	s.Require().ErrorIs(res.Err, context.Canceled)
	s.Assert().True(res.Fatal)
	s.Assert().Equal(1, res.Attempts)
}
