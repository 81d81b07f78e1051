package services

import (
	"context"
	"fmt"

	"egharbari/api/internal/identity"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// collectionSlugs answers slug availability from a collection's "slug" field.
type collectionSlugs struct {
	coll *mongo.Collection
}

func (c collectionSlugs) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	filter := bson.M{"slug": slug}
	if excludeID != "" {
		oid, err := primitive.ObjectIDFromHex(excludeID)
		if err != nil {
			return false, fmt.Errorf("invalid exclude id %q: %w", excludeID, err)
		}
		filter["_id"] = bson.M{"$ne": oid}
	}
	n, err := c.coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to look up slug %s: %w", slug, err)
	}
	return n > 0, nil
}

func newSlugResolver(coll *mongo.Collection, maxAttempts int) identity.Resolver {
	return identity.Resolver{Lookup: collectionSlugs{coll: coll}, MaxAttempts: maxAttempts}
}
