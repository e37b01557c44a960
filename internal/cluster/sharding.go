package cluster

import (
	"context"

	"github.com/mongodb-labs/data-inflater/agg"
	"github.com/mongodb-labs/data-inflater/internal/inflater"
	"github.com/mongodb-labs/data-inflater/internal/retry"
	"github.com/mongodb-labs/data-inflater/internal/util"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/mongodb-labs/data-inflater/option"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	configDBName   = "config"
	chunksCollName = "chunks"
)

func (b *Backend) adminCommand(ctx context.Context, cmd bson.D) error {
	return b.client.Database("admin").RunCommand(ctx, cmd).Err()
}

// EnableSharding shards ns on an ascending range key. The deployment must
// be a sharded cluster.
func (b *Backend) EnableSharding(ctx context.Context, ns mmongo.Namespace, key []string) error {
	topology, err := util.GetTopology(ctx, b.logger, b.client)
	if err != nil {
		return err
	}

	if topology != util.TopologySharded {
		return errors.Errorf("cannot shard %#q: the deployment is a %s, not a sharded cluster", ns.String(), topology)
	}

	return b.retryer.
		WithDescription("shard %#q", ns.String()).
		Run(
			ctx,
			b.logger,
			func(ctx context.Context, fi *retry.FuncInfo) error {
				fi.Log(b.logger.Logger, "enableSharding", ns.DB, "Enabling sharding on the target database.")

				err := b.adminCommand(ctx, bson.D{{"enableSharding", ns.DB}})
				if err != nil && !util.IsAlreadyInitializedError(err) {
					return errors.Wrapf(err, "failed to enable sharding on database %#q", ns.DB)
				}

				fi.Log(b.logger.Logger, "shardCollection", ns.String(), "Sharding the target collection.")

				err = b.adminCommand(ctx, bson.D{
					{"shardCollection", ns.String()},
					{"key", inflater.RangeShardKey(key)},
				})

				return errors.Wrapf(err, "failed to shard collection %#q", ns.String())
			},
		)
}

// SplitChunk splits ns's chunk that contains the given value of the key's
// first field.
func (b *Backend) SplitChunk(
	ctx context.Context,
	ns mmongo.Namespace,
	key []string,
	boundary bson.RawValue,
) error {
	return b.retryer.
		WithDescription("split %#q", ns.String()).
		Run(
			ctx,
			b.logger,
			func(ctx context.Context, _ *retry.FuncInfo) error {
				return b.adminCommand(ctx, bson.D{
					{"split", ns.String()},
					{"middle", inflater.SplitMiddle(key, boundary)},
				})
			},
		)
}

// ChunkCountsByShard returns how many of ns's chunks each shard owns.
func (b *Backend) ChunkCountsByShard(ctx context.Context, ns mmongo.Namespace) (map[string]int, error) {
	collUUID, err := util.GetShardedCollectionUUID(ctx, b.coll(ns))
	if err != nil {
		return nil, err
	}

	cursor, err := b.client.Database(configDBName).Collection(chunksCollName).Aggregate(
		ctx,
		chunkCountPipeline(ns, collUUID),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to count %#q's chunks", ns.String())
	}

	var rows []struct {
		Shard string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, errors.Wrapf(err, "failed to read %#q's chunk counts", ns.String())
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Shard] = row.Count
	}

	return counts, nil
}

// Older servers key config.chunks by namespace, newer ones by the
// collection's UUID.
func chunkCountPipeline(ns mmongo.Namespace, collUUID option.Option[primitive.Binary]) mongo.Pipeline {
	filter := agg.Or{bson.D{{"ns", ns.String()}}}
	if uuid, has := collUUID.Get(); has {
		filter = append(filter, bson.D{{"uuid", uuid}})
	}

	return agg.Pipeline(
		agg.Match{Filter: filter},
		agg.Group{
			ID:     agg.FieldRef("shard"),
			Fields: bson.D{{"count", agg.Sum{1}}},
		},
	)
}
