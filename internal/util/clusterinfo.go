package util

import (
	"context"

	"github.com/mongodb-labs/data-inflater/internal/logger"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type ClusterTopology string

const (
	TopologySharded ClusterTopology = "sharded"
	TopologyReplset ClusterTopology = "replset"
)

// GetTopology reports whether the client is connected to a mongos.
func GetTopology(ctx context.Context, logger *logger.Logger, client *mongo.Client) (ClusterTopology, error) {
	topology, err := getTopology(ctx, "hello", client)
	if err != nil {
		logger.Info().
			Err(err).
			Msgf("Failed to learn topology via %#q; falling back to %#q.", "hello", "isMaster")

		topology, err = getTopology(ctx, "isMaster", client)
		if err != nil {
			return "", errors.Wrapf(err, "failed to learn topology via %#q", "isMaster")
		}
	}

	return topology, nil
}

func getTopology(ctx context.Context, cmdName string, client *mongo.Client) (ClusterTopology, error) {
	resp := client.Database("admin").RunCommand(
		ctx,
		bson.D{{cmdName, 1}},
	)

	raw, err := resp.Raw()
	if err != nil {
		return "", errors.Wrapf(err, "failed learn topology via %#q", cmdName)
	}

	// Only mongos includes msg: "isdbgrid" in its hello response.
	msg, hasMsg := raw.Lookup("msg").StringValueOK()

	return lo.Ternary(hasMsg && msg == "isdbgrid", TopologySharded, TopologyReplset), nil
}
