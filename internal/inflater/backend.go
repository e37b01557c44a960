package inflater

import (
	"context"

	"github.com/mongodb-labs/data-inflater/agg"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/mongodb-labs/data-inflater/option"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Backend is everything the inflater needs from the database.
type Backend interface {
	Ping(ctx context.Context) error
	CountDocuments(ctx context.Context, ns mmongo.Namespace) (int64, error)

	// RunAggregationPipeline runs one batch's pipeline server-side and
	// returns how many documents it wrote.
	RunAggregationPipeline(ctx context.Context, spec PipelineSpec) (int64, error)

	EnableSharding(ctx context.Context, ns mmongo.Namespace, key []string) error
	SplitChunk(ctx context.Context, ns mmongo.Namespace, key []string, boundary bson.RawValue) error
	SampleDistinctValues(ctx context.Context, ns mmongo.Namespace, field string, sampleSize int) (FieldSample, error)
	GetShardKey(ctx context.Context, ns mmongo.Namespace) (option.Option[bson.Raw], error)

	PrepareTarget(ctx context.Context, ns mmongo.Namespace, opts TargetOptions) error
	ChunkCountsByShard(ctx context.Context, ns mmongo.Namespace) (map[string]int, error)
	CollectionStats(ctx context.Context, ns mmongo.Namespace) (CollectionStats, error)
}

// PipelineSpec describes one batch's server-side copy.
type PipelineSpec struct {
	Source mmongo.Namespace
	Target mmongo.Namespace

	// Count is how many documents the batch writes.
	Count int64

	// SourceCount is the source's document count. Batches larger than
	// this sample with replacement.
	SourceCount int64
}

// WithReplacement indicates whether the batch needs more documents than the
// source holds.
func (ps PipelineSpec) WithReplacement() bool {
	return ps.Count > ps.SourceCount
}

// Passes returns how many $sample passes over the source the batch needs.
func (ps PipelineSpec) Passes() int64 {
	if !ps.WithReplacement() {
		return 1
	}

	return (ps.Count + ps.SourceCount - 1) / ps.SourceCount
}

// Pipeline returns the aggregation to run against the source collection.
//
// Small batches are a single $sample. Larger ones union repeated full-size
// samples of the source, then trim to Count. Either way _id is dropped so
// that $merge inserts each document under a fresh ObjectId, and
// whenMatched: "fail" guarantees that nothing is overwritten.
func (ps PipelineSpec) Pipeline() mongo.Pipeline {
	stages := []agg.Stage{}

	if ps.WithReplacement() {
		stages = append(stages, agg.Sample{Size: ps.SourceCount})

		for range ps.Passes() - 1 {
			stages = append(stages, agg.UnionWith{
				Coll:     ps.Source.Coll,
				Pipeline: agg.Pipeline(agg.Sample{Size: ps.SourceCount}),
			})
		}

		stages = append(stages, agg.Limit(ps.Count))
	} else {
		stages = append(stages, agg.Sample{Size: ps.Count})
	}

	stages = append(
		stages,
		agg.Unset{"_id"},
		agg.Merge{
			DB:             ps.Target.DB,
			Coll:           ps.Target.Coll,
			WhenMatched:    "fail",
			WhenNotMatched: "insert",
		},
	)

	return agg.Pipeline(stages...)
}

// FieldSample is the result of sampling one field across random source
// documents.
type FieldSample struct {
	// Values holds the field's value from each sampled document that has
	// the field.
	Values []bson.RawValue

	// DocsSampled counts every sampled document, with or without the field.
	DocsSampled int
}

// TargetOptions controls how the target collection is created.
type TargetOptions struct {
	Drop        bool
	Compression Compression
}

// CollectionStats summarizes a collection's storage.
type CollectionStats struct {
	Namespace      mmongo.Namespace
	Sharded        bool
	Count          int64
	AvgObjSize     int64
	Size           int64
	TotalIndexSize int64
	StorageSize    int64
	TotalSize      int64
}
