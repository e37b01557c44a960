package inflater

import (
	"context"

	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/mongodb-labs/data-inflater/internal/util"
	"github.com/mongodb-labs/data-inflater/mmongo"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Only these types make useful range boundaries. (Booleans, for example,
// have just two values.)
var splittableTypes = mapset.NewSet(
	bson.TypeString,
	bson.TypeDateTime,
	bson.TypeInt32,
	bson.TypeInt64,
	bson.TypeDouble,
	bson.TypeDecimal128,
	bson.TypeTimestamp,
	bson.TypeObjectID,
)

// PreSplitter shards the target and creates its chunk boundaries before
// any document is written.
type PreSplitter struct {
	backend      Backend
	logger       *logger.Logger
	bucketCap    int
	docsPerChunk int64
}

func NewPreSplitter(backend Backend, logger *logger.Logger, bucketCap int, docsPerChunk int64) *PreSplitter {
	return &PreSplitter{
		backend:      backend,
		logger:       logger,
		bucketCap:    bucketCap,
		docsPerChunk: docsPerChunk,
	}
}

// Plan chooses split points so that each of ceil(total/docsPerChunk)
// chunks (at most bucketCap) receives a near-equal share of the sampled
// frequency. Values of unsplittable types (null, bool, ...) are left out.
// Points are ascending and distinct. The lowest remaining value is never a
// point since the first chunk already starts at MinKey.
func (ps *PreSplitter) Plan(sample ShardDistributionSample, total int64) []bson.RawValue {
	if len(sample.Values) == 0 {
		return nil
	}

	splittable := lo.Filter(
		sample.Values,
		func(vf ValueFrequency, _ int) bool {
			return splittableTypes.Contains(vf.Value.Type)
		},
	)

	if len(splittable) == 0 {
		ps.logger.Warn().
			Str("field", sample.Field).
			Str("type", sample.Values[0].Value.Type.String()).
			Msg("Shard key values are not of a splittable type. The target will be sharded but not pre-split.")

		return nil
	}

	if skipped := len(sample.Values) - len(splittable); skipped > 0 {
		ps.logger.Debug().
			Str("field", sample.Field).
			Int("skippedValues", skipped).
			Msg("Ignoring sampled shard key values of unsplittable types.")
	}

	sample.Values = splittable

	chunks := (total + ps.docsPerChunk - 1) / ps.docsPerChunk
	chunks = min(chunks, int64(ps.bucketCap))
	if chunks < 2 {
		return nil
	}

	freqTotal := int64(sample.Total())

	var pointIdxs []int
	cumulative := int64(0)
	nextChunk := int64(1)

	for i, vf := range sample.Values {
		cumulative += int64(vf.Frequency)

		// The value whose cumulative frequency first reaches
		// chunk*freqTotal/chunks is that chunk's boundary.
		for nextChunk < chunks && cumulative*chunks >= nextChunk*freqTotal {
			pointIdxs = append(pointIdxs, i)
			nextChunk++
		}
	}

	pointIdxs = lo.Uniq(pointIdxs)
	pointIdxs = lo.Without(pointIdxs, 0)

	points := lo.Map(
		pointIdxs,
		func(idx int, _ int) bson.RawValue {
			return sample.Values[idx].Value
		},
	)

	ps.logger.Debug().
		Str("field", sample.Field).
		Int64("desiredChunks", chunks).
		Int("splitPoints", len(points)).
		Msg("Planned split points.")

	return points
}

// Apply shards ns on the given range key, then splits at each point in
// order. Any failure that re-running would not fix is a ShardSetupError.
func (ps *PreSplitter) Apply(
	ctx context.Context,
	ns mmongo.Namespace,
	key []string,
	points []bson.RawValue,
) error {
	curKey, err := ps.backend.GetShardKey(ctx, ns)
	if err != nil {
		return ShardSetupError{errors.Wrapf(err, "failed to read %#q's shard key", ns.String())}
	}

	if raw, isSharded := curKey.Get(); isSharded {
		if !ShardKeyMatches(raw, key) {
			return ShardSetupError{errors.Errorf(
				"%#q is already sharded on %s, not on %v",
				ns.String(),
				raw,
				key,
			)}
		}

		ps.logger.Info().
			Str("namespace", ns.String()).
			Msg("Target is already sharded on the requested key.")
	} else if err := ps.backend.EnableSharding(ctx, ns, key); err != nil {
		return ShardSetupError{errors.Wrapf(err, "failed to shard %#q on %v", ns.String(), key)}
	}

	for i, point := range points {
		err := ps.backend.SplitChunk(ctx, ns, key, point)

		switch {
		case err == nil:
		case util.IsSplitBoundaryExistsError(err):
			ps.logger.Debug().
				Str("namespace", ns.String()).
				Stringer("point", point).
				Msg("Split point already exists.")
		default:
			return ShardSetupError{errors.Wrapf(
				err,
				"failed to split %#q at point %d of %d (%s)",
				ns.String(),
				i+1,
				len(points),
				point,
			)}
		}
	}

	confirmedKey, err := ps.backend.GetShardKey(ctx, ns)
	if err != nil {
		return ShardSetupError{errors.Wrapf(err, "failed to confirm %#q's shard key", ns.String())}
	}

	if raw, isSharded := confirmedKey.Get(); !isSharded || !ShardKeyMatches(raw, key) {
		return ShardSetupError{errors.Errorf(
			"%#q is not sharded on %v after sharding it",
			ns.String(),
			key,
		)}
	}

	ps.logger.Info().
		Str("namespace", ns.String()).
		Strs("shardKey", key).
		Int("splitPoints", len(points)).
		Msg("Target is sharded and pre-split.")

	return nil
}

// RangeShardKey returns the shard key document for an ascending range key.
func RangeShardKey(key []string) bson.D {
	return lo.Map(key, func(field string, _ int) bson.E {
		return bson.E{Key: field, Value: 1}
	})
}

// SplitMiddle returns the "middle" document for a split at the given
// value of the key's first field. Later fields are MaxKey so that the
// split happens on the first field alone.
func SplitMiddle(key []string, boundary bson.RawValue) bson.D {
	return lo.Map(key, func(field string, i int) bson.E {
		if i == 0 {
			return bson.E{Key: field, Value: boundary}
		}

		return bson.E{Key: field, Value: primitive.MaxKey{}}
	})
}

// ShardKeyMatches indicates whether raw is an ascending range shard key on
// exactly the given fields, in order.
func ShardKeyMatches(raw bson.Raw, key []string) bool {
	elems, err := raw.Elements()
	if err != nil || len(elems) != len(key) {
		return false
	}

	for i, elem := range elems {
		if elem.Key() != key[i] {
			return false
		}

		if val, ok := elem.Value().AsInt64OK(); !ok || val != 1 {
			return false
		}
	}

	return true
}
