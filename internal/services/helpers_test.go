package services

import (
	"context"
	"testing"

	"egharbari/api/internal/config"
	"egharbari/api/internal/db"
	"egharbari/api/internal/utils"
	"go.mongodb.org/mongo-driver/mongo"
)

func testConfig() *config.Config {
	return &config.Config{
		IdentityMaxRetries: 5,
		MaxSlugAttempts:    1000,
		PasswordRegexp:     "^.{6,}$",
	}
}

func setupServiceDB(t *testing.T, dbName string) *mongo.Database {
	database := utils.SetupTestDB(t, dbName,
		db.PropertiesCollection,
		db.InquiriesCollection,
		db.UsersCollection,
		db.FavoritesCollection,
		db.BlogsCollection,
		db.CountersCollection,
		db.EmailTemplatesCollection,
	)
	if err := db.EnsureIndexes(context.Background(), database); err != nil {
		t.Fatalf("failed to ensure indexes: %v", err)
	}
	return database
}
