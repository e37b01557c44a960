package inflater

import (
	"context"
	"fmt"

	"github.com/cespare/permute/v2"
	"github.com/mongodb-labs/data-inflater/mbson"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func rawValues(vals ...any) []bson.RawValue {
	return lo.Map(vals, func(v any, _ int) bson.RawValue {
		return mbson.MustConvertToRawValue(v)
	})
}

func (s *UnitTestSuite) TestBuildDistributionGroupsAndSorts() {
	dist := BuildDistribution(
		rawValues("us", int32(5), "eu", "us", nil, int64(5), 2.5, "us"),
		100,
	)

	s.Require().Len(dist, 5)

	s.Assert().Equal(bson.TypeNull, dist[0].Value.Type)
	s.Assert().Equal(1, dist[0].Frequency)

	s.Assert().Equal(2.5, dist[1].Value.Double())
	s.Assert().Equal(1, dist[1].Frequency)

	s.Assert().True(mbson.RawValuesEqual(dist[2].Value, mbson.MustConvertToRawValue(5)))
	s.Assert().Equal(2, dist[2].Frequency, "int32 5 and int64 5 are one value")

	s.Assert().Equal("eu", dist[3].Value.StringValue())
	s.Assert().Equal(1, dist[3].Frequency)

	s.Assert().Equal("us", dist[4].Value.StringValue())
	s.Assert().Equal(3, dist[4].Frequency)
}

func (s *UnitTestSuite) TestBuildDistributionCap() {
	vals := lo.Times(100, func(i int) any { return int32(i) })
	vals = append(vals, int32(0), int32(0))

	dist := BuildDistribution(rawValues(vals...), 10)

	s.Require().Len(dist, 10)
	s.Assert().Equal(int32(0), dist[0].Value.Int32(), "a bucket keeps its lowest value")
	s.Assert().Equal(12, dist[0].Frequency)

	for i, bucket := range dist[1:] {
		s.Assert().Equal(int32((i+1)*10), bucket.Value.Int32())
		s.Assert().Equal(10, bucket.Frequency)
	}

	s.Assert().Equal(
		len(vals),
		lo.SumBy(dist, func(vf ValueFrequency) int { return vf.Frequency }),
		"merging keeps the total",
	)
}

func (s *UnitTestSuite) TestBuildDistributionPermutationInvariant() {
	values := rawValues(
		"b", "a", int32(1), 1.0, int64(1), "b",
		primitive.DateTime(1_700_000_000_000),
	)

	expected := BuildDistribution(values, 3)

	p := permute.Slice(values)
	permutation := 0
	for p.Permute() {
		permutation++

		got := BuildDistribution(values, 3)
		s.Require().Len(got, len(expected))

		for i := range expected {
			label := fmt.Sprintf("permutation %d, bucket %d", permutation, i)

			s.Assert().Equal(expected[i].Value.Type, got[i].Value.Type, label)
			s.Assert().Equal(expected[i].Value.Value, got[i].Value.Value, label)
			s.Assert().Equal(expected[i].Frequency, got[i].Frequency, label)
		}
	}
}

func (s *UnitTestSuite) TestProfile() {
	ctx := context.Background()
	backend := newFakeBackend()
	ns := mmongo.Namespace{DB: "db", Coll: "src"}

	backend.seed(ns, "region", "us", "us", "us", "eu")
	backend.seed(ns, "", 1, 2)

	profiler := NewProfiler(backend, s.logger, 1000, 512)
	sample, err := profiler.Profile(ctx, ns, "region")
	s.Require().NoError(err)

	s.Assert().Equal("region", sample.Field)
	s.Assert().Equal(6, sample.DocsSampled)
	s.Assert().Equal(4, sample.Total(), "documents without the field are not counted")
	s.Require().Len(sample.Values, 2)
	s.Assert().Equal("eu", sample.Values[0].Value.StringValue())
	s.Assert().Equal(3, sample.Values[1].Frequency)
}

func (s *UnitTestSuite) TestProfileErrors() {
	ctx := context.Background()
	backend := newFakeBackend()
	empty := mmongo.Namespace{DB: "db", Coll: "empty"}
	noField := mmongo.Namespace{DB: "db", Coll: "nofield"}

	backend.seed(noField, "other", 1, 2, 3)

	profiler := NewProfiler(backend, s.logger, 1000, 512)

	_, err := profiler.Profile(ctx, empty, "region")
	s.Assert().ErrorAs(err, &ProfilingError{})
	s.Assert().ErrorContains(err, "empty")

	_, err = profiler.Profile(ctx, noField, "region")
	s.Assert().ErrorAs(err, &ProfilingError{})
	s.Assert().ErrorContains(err, "has the field")
}
