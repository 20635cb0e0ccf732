package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"diagnostics/internal/logger"
)

// createIndex logs and swallows failures so a read-only replica does not block startup
func createIndex(ctx context.Context, log *logger.Logger, coll *mongo.Collection, keys bson.D, unique bool) {
	opts := options.Index().SetUnique(unique)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: opts})
	if err != nil {
		log.Warn("failed to create index", "collection", coll.Name(), "error", err)
	}
}
