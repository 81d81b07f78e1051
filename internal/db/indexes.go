package db

import (
	"context"
	"fmt"

	"egharbari/api/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var indexes = map[string][]mongo.IndexModel{
	PropertiesCollection: {
		{Keys: bson.D{{Key: "propertyId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "propertyType", Value: 1}, {Key: "listingType", Value: 1}}},
		{Keys: bson.D{{Key: "location.district", Value: 1}}},
		{Keys: bson.D{{Key: "price", Value: 1}}},
	},
	InquiriesCollection: {
		{Keys: bson.D{{Key: "email", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "isRead", Value: 1}}},
	},
	UsersCollection: {
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
	FavoritesCollection: {
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "propertyId", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
	BlogsCollection: {
		{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "isPublished", Value: 1}, {Key: "publishedAt", Value: -1}}},
	},
	EmailTemplatesCollection: {
		{Keys: bson.D{{Key: "templateId", Value: 1}, {Key: "locale", Value: 1}}, Options: options.Index().SetUnique(true)},
	},
}

// EnsureIndexes creates the indexes the services rely on, including the unique
// constraints that back propertyId, slug, email and favorite uniqueness.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	for collection, models := range indexes {
		names, err := database.Collection(collection).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
		utils.Logger.Debugf("Ensured indexes on %s: %v", collection, names)
	}
	return nil
}
