package inflater

import (
	"bytes"
	"cmp"
	"context"
	"slices"

	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/mbson"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
)

// ValueFrequency is one shard-key value and how often the sample saw it.
// In a merged bucket, Value is the bucket's lowest value.
type ValueFrequency struct {
	Value     bson.RawValue
	Frequency int
}

// ShardDistributionSample is the profiled distribution of a shard-key
// field, ascending in the server's sort order.
type ShardDistributionSample struct {
	Field       string
	Values      []ValueFrequency
	DocsSampled int
}

// Total returns the sum of all frequencies.
func (s ShardDistributionSample) Total() int {
	return lo.SumBy(s.Values, func(vf ValueFrequency) int { return vf.Frequency })
}

// Profiler learns how a source collection's shard-key values are
// distributed.
type Profiler struct {
	backend    Backend
	logger     *logger.Logger
	sampleSize int
	bucketCap  int
}

func NewProfiler(backend Backend, logger *logger.Logger, sampleSize, bucketCap int) *Profiler {
	return &Profiler{
		backend:    backend,
		logger:     logger,
		sampleSize: sampleSize,
		bucketCap:  bucketCap,
	}
}

// Profile samples the given field from random documents in ns.
func (p *Profiler) Profile(
	ctx context.Context,
	ns mmongo.Namespace,
	field string,
) (ShardDistributionSample, error) {
	fieldSample, err := p.backend.SampleDistinctValues(ctx, ns, field, p.sampleSize)
	if err != nil {
		return ShardDistributionSample{}, ProfilingError{
			Field: field,
			cause: errors.Wrapf(err, "failed to sample %#q", ns.String()),
		}
	}

	if fieldSample.DocsSampled == 0 {
		return ShardDistributionSample{}, ProfilingError{
			Field: field,
			cause: errors.Errorf("source collection %#q is empty", ns.String()),
		}
	}

	if len(fieldSample.Values) == 0 {
		return ShardDistributionSample{}, ProfilingError{
			Field: field,
			cause: errors.Errorf(
				"none of the %d sampled document(s) in %#q has the field",
				fieldSample.DocsSampled,
				ns.String(),
			),
		}
	}

	dist := BuildDistribution(fieldSample.Values, p.bucketCap)

	p.logger.Debug().
		Str("namespace", ns.String()).
		Str("field", field).
		Int("docsSampled", fieldSample.DocsSampled).
		Int("valuesSampled", len(fieldSample.Values)).
		Int("buckets", len(dist)).
		Msg("Profiled shard key distribution.")

	return ShardDistributionSample{
		Field:       field,
		Values:      dist,
		DocsSampled: fieldSample.DocsSampled,
	}, nil
}

// BuildDistribution groups and counts the given values, then sorts them
// ascending. If there are more than bucketCap distinct values, adjacent
// values are merged into bucketCap buckets, each of which spans a
// near-equal number of distinct values.
//
// The result does not depend on the order of the input.
func BuildDistribution(values []bson.RawValue, bucketCap int) []ValueFrequency {
	sorted := slices.Clone(values)

	// Values that the server considers equal (e.g., 1 and 1.0) fall into
	// one group. The byte-level tiebreak makes the group's representative
	// independent of input order.
	slices.SortFunc(sorted, func(a, b bson.RawValue) int {
		if c := mbson.CompareRawValues(a, b); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return bytes.Compare(a.Value, b.Value)
	})

	var groups []ValueFrequency
	for _, val := range sorted {
		if len(groups) > 0 && mbson.RawValuesEqual(groups[len(groups)-1].Value, val) {
			groups[len(groups)-1].Frequency++
			continue
		}

		groups = append(groups, ValueFrequency{Value: val, Frequency: 1})
	}

	if bucketCap < 1 || len(groups) <= bucketCap {
		return groups
	}

	buckets := make([]ValueFrequency, bucketCap)
	for i := range buckets {
		start := i * len(groups) / bucketCap
		end := (i + 1) * len(groups) / bucketCap

		buckets[i] = ValueFrequency{
			Value: groups[start].Value,
			Frequency: lo.SumBy(
				groups[start:end],
				func(vf ValueFrequency) int { return vf.Frequency },
			),
		}
	}

	return buckets
}
