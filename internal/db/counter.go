package db

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PropertySequence is the counter that feeds property codes.
const PropertySequence = "property"

type counterDoc struct {
	Seq int64 `bson:"seq"`
}

// NextSequence atomically increments the named counter and returns the new value.
// The counter is created on first use.
func NextSequence(ctx context.Context, database *mongo.Database, name string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc counterDoc
	err := database.Collection(CountersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return doc.Seq, nil
}

// SeedSequence raises the named counter to at least floor. It never lowers it.
func SeedSequence(ctx context.Context, database *mongo.Database, name string, floor int64) error {
	_, err := database.Collection(CountersCollection).UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$max": bson.M{"seq": floor}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to seed sequence %s: %w", name, err)
	}
	return nil
}

// CurrentSequence returns the counter's value, 0 when it has never been used.
func CurrentSequence(ctx context.Context, database *mongo.Database, name string) (int64, error) {
	var doc counterDoc
	err := database.Collection(CountersCollection).FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence %s: %w", name, err)
	}
	return doc.Seq, nil
}
