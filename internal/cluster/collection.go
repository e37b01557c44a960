package cluster

import (
	"context"

	"github.com/mongodb-labs/data-inflater/internal/inflater"
	"github.com/mongodb-labs/data-inflater/internal/util"
	"github.com/mongodb-labs/data-inflater/mmongo"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PrepareTarget (optionally) drops the target, then creates it with the
// requested block compressor. A target that already exists keeps its
// original options.
func (b *Backend) PrepareTarget(ctx context.Context, ns mmongo.Namespace, opts inflater.TargetOptions) error {
	coll := b.coll(ns)

	if opts.Drop {
		b.logger.Info().
			Str("namespace", ns.String()).
			Msg("Dropping target collection.")

		if err := coll.Drop(ctx); err != nil {
			return errors.Wrapf(err, "failed to drop %#q", ns.String())
		}
	}

	err := coll.Database().CreateCollection(
		ctx,
		ns.Coll,
		options.CreateCollection().SetStorageEngine(storageEngineOptions(opts.Compression)),
	)

	switch {
	case err == nil:
		b.logger.Info().
			Str("namespace", ns.String()).
			Str("compression", string(opts.Compression)).
			Msg("Created target collection.")
	case util.IsNamespaceExistsError(err):
		b.logger.Info().
			Str("namespace", ns.String()).
			Msg("Target collection already exists. Its compression is unchanged.")
	default:
		return errors.Wrapf(err, "failed to create %#q", ns.String())
	}

	return nil
}

func storageEngineOptions(compression inflater.Compression) bson.D {
	return bson.D{
		{"wiredTiger", bson.D{
			{"configString", "block_compressor=" + string(compression)},
		}},
	}
}

// CollectionStats summarizes ns's storage via collStats.
func (b *Backend) CollectionStats(ctx context.Context, ns mmongo.Namespace) (inflater.CollectionStats, error) {
	raw, err := b.coll(ns).Database().RunCommand(ctx, bson.D{{"collStats", ns.Coll}}).Raw()
	if err != nil {
		return inflater.CollectionStats{}, errors.Wrapf(err, "failed to read %#q's statistics", ns.String())
	}

	return parseCollStats(ns, raw), nil
}

func parseCollStats(ns mmongo.Namespace, raw bson.Raw) inflater.CollectionStats {
	num := func(field string) int64 {
		val, _ := raw.Lookup(field).AsInt64OK()
		return val
	}

	sharded, _ := raw.Lookup("sharded").BooleanOK()

	return inflater.CollectionStats{
		Namespace:      ns,
		Sharded:        sharded,
		Count:          num("count"),
		AvgObjSize:     num("avgObjSize"),
		Size:           num("size"),
		TotalIndexSize: num("totalIndexSize"),
		StorageSize:    num("storageSize"),
		TotalSize:      num("totalSize"),
	}
}
