package cluster

import (
	"context"
	"slices"

	"github.com/mongodb-labs/data-inflater/agg"
	"github.com/mongodb-labs/data-inflater/internal/inflater"
	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/internal/retry"
	"github.com/mongodb-labs/data-inflater/internal/util"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/mongodb-labs/data-inflater/option"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	appName = "data-inflater"

	// sampledValueField is where the profiling pipeline puts each sampled
	// document's shard key value.
	sampledValueField = "v"
)

// Backend runs the inflater's database operations against a real
// deployment.
type Backend struct {
	client  *mongo.Client
	logger  *logger.Logger
	retryer *retry.Retryer
}

var _ inflater.Backend = &Backend{}

// Connect opens a client for the given connection string. As in mongosh, a
// single-host string without contrary options connects directly.
func Connect(ctx context.Context, logger *logger.Logger, uri string) (*Backend, error) {
	added, uri, err := mmongo.MaybeAddDirectConnection(uri)
	if err != nil {
		return nil, inflater.NewConfigError("%v", err)
	}

	if added {
		logger.Debug().Msg("Connection string has one host. Connecting directly.")
	}

	opts := options.Client().ApplyURI(uri).SetAppName(appName)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect")
	}

	return New(client, logger), nil
}

// New wraps an existing client.
func New(client *mongo.Client, logger *logger.Logger) *Backend {
	return &Backend{
		client:  client,
		logger:  logger,
		retryer: retry.New(),
	}
}

func (b *Backend) Client() *mongo.Client {
	return b.client
}

func (b *Backend) Disconnect(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func (b *Backend) coll(ns mmongo.Namespace) *mongo.Collection {
	return b.client.Database(ns.DB).Collection(ns.Coll)
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, readpref.Primary())
}

func (b *Backend) CountDocuments(ctx context.Context, ns mmongo.Namespace) (int64, error) {
	var count int64

	err := b.retryer.
		WithDescription("count documents in %#q", ns.String()).
		Run(
			ctx,
			b.logger,
			func(ctx context.Context, _ *retry.FuncInfo) error {
				var err error
				count, err = b.coll(ns).CountDocuments(ctx, bson.D{})
				return err
			},
		)

	return count, errors.Wrapf(err, "failed to count documents in %#q", ns.String())
}

// RunAggregationPipeline runs the batch's pipeline in its own session.
// The pipeline ends in $merge, so it yields no documents; on success it
// has written exactly spec.Count.
func (b *Backend) RunAggregationPipeline(ctx context.Context, spec inflater.PipelineSpec) (int64, error) {
	sess, err := b.client.StartSession()
	if err != nil {
		return 0, errors.Wrap(err, "failed to start session")
	}
	defer sess.EndSession(ctx)

	err = mongo.WithSession(ctx, sess, func(sctx mongo.SessionContext) error {
		cursor, err := b.coll(spec.Source).Aggregate(
			sctx,
			spec.Pipeline(),
			options.Aggregate().SetAllowDiskUse(true),
		)
		if err != nil {
			return err
		}

		return cursor.Close(sctx)
	})
	if err != nil {
		return 0, errors.Wrapf(
			err,
			"failed to copy %d document(s) from %#q to %#q",
			spec.Count,
			spec.Source.String(),
			spec.Target.String(),
		)
	}

	return spec.Count, nil
}

// SampleDistinctValues reads the given field from sampleSize random
// documents.
func (b *Backend) SampleDistinctValues(
	ctx context.Context,
	ns mmongo.Namespace,
	field string,
	sampleSize int,
) (inflater.FieldSample, error) {
	pipeline := agg.Pipeline(
		agg.Sample{Size: int64(sampleSize)},
		agg.Project{Fields: bson.D{
			{"_id", 0},
			{sampledValueField, agg.FieldRef(field)},
		}},
	)

	cursor, err := b.coll(ns).Aggregate(ctx, pipeline)
	if err != nil {
		return inflater.FieldSample{}, errors.Wrapf(err, "failed to sample %#q", ns.String())
	}
	defer cursor.Close(ctx)

	sample := inflater.FieldSample{}

	for cursor.Next(ctx) {
		sample.DocsSampled++

		val, err := cursor.Current.LookupErr(sampledValueField)
		if err != nil {
			continue
		}

		// The cursor reuses its buffer.
		val.Value = slices.Clone(val.Value)
		sample.Values = append(sample.Values, val)
	}

	if err := cursor.Err(); err != nil {
		return inflater.FieldSample{}, errors.Wrapf(err, "failed to read sample of %#q", ns.String())
	}

	return sample, nil
}

func (b *Backend) GetShardKey(ctx context.Context, ns mmongo.Namespace) (option.Option[bson.Raw], error) {
	return util.GetShardKey(ctx, b.coll(ns))
}
