package util

import (
	"context"

	"github.com/mongodb-labs/data-inflater/option"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

const (
	configDBName  = "config"
	collsCollName = "collections"
)

// FullName returns the collection's full namespace.
func FullName(collection *mongo.Collection) string {
	return collection.Database().Name() + "." + collection.Name()
}

// GetShardKey returns the collection's shard key, or an empty option
// if the collection is unsharded.
func GetShardKey(
	ctx context.Context,
	coll *mongo.Collection,
) (option.Option[bson.Raw], error) {
	rawResult, found, err := getShardingEntry(ctx, coll)
	if err != nil || !found {
		return option.None[bson.Raw](), err
	}

	namespace := FullName(coll)

	keyAsVal, err := rawResult.LookupErr("key")
	if errors.Is(err, bsoncore.ErrElementNotFound) {
		return option.None[bson.Raw](), nil
	} else if err != nil {
		return option.None[bson.Raw](), errors.Wrapf(
			err,
			"failed to find %#q in %#q's sharding entry",
			"key",
			namespace,
		)
	}

	keyAsRaw, isDoc := keyAsVal.DocumentOK()
	if !isDoc {
		return option.None[bson.Raw](), errors.Errorf(
			"%#q in %#q's sharding entry is of type %#q, not an object",
			"key",
			namespace,
			keyAsVal.Type,
		)
	}

	return option.Some(keyAsRaw), nil
}

// GetShardedCollectionUUID returns the UUID that the sharding catalog
// records for the collection, or an empty option if the collection is
// unsharded. Newer servers key config.chunks by this UUID rather than by
// namespace.
func GetShardedCollectionUUID(
	ctx context.Context,
	coll *mongo.Collection,
) (option.Option[primitive.Binary], error) {
	rawResult, found, err := getShardingEntry(ctx, coll)
	if err != nil || !found {
		return option.None[primitive.Binary](), err
	}

	uuidVal, err := rawResult.LookupErr("uuid")
	if errors.Is(err, bsoncore.ErrElementNotFound) {
		return option.None[primitive.Binary](), nil
	} else if err != nil {
		return option.None[primitive.Binary](), errors.Wrapf(
			err,
			"failed to find %#q in %#q's sharding entry",
			"uuid",
			FullName(coll),
		)
	}

	subtype, data, ok := uuidVal.BinaryOK()
	if !ok {
		return option.None[primitive.Binary](), errors.Errorf(
			"%#q in %#q's sharding entry is of type %#q, not binary",
			"uuid",
			FullName(coll),
			uuidVal.Type,
		)
	}

	return option.Some(primitive.Binary{Subtype: subtype, Data: data}), nil
}

func getShardingEntry(ctx context.Context, coll *mongo.Collection) (bson.Raw, bool, error) {
	namespace := FullName(coll)

	configCollectionsColl := coll.Database().Client().
		Database(configDBName).
		Collection(collsCollName)

	rawResult, err := configCollectionsColl.FindOne(ctx, bson.D{{"_id", namespace}}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.Wrapf(
			err,
			"failed to find sharding info for %#q",
			namespace,
		)
	}

	// Dropped sharded collections can linger in the catalog.
	if dropped, ok := rawResult.Lookup("dropped").BooleanOK(); ok && dropped {
		return nil, false, nil
	}

	return rawResult, true, nil
}
