package services

import (
	"context"
	"time"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/db"
	"egharbari/api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IFavoriteService manages users' bookmarked properties.
type IFavoriteService interface {
	Add(ctx context.Context, userID, propertyID primitive.ObjectID) (*models.Favorite, error)
	Remove(ctx context.Context, userID, propertyID primitive.ObjectID) error
	List(ctx context.Context, userID primitive.ObjectID) ([]models.FavoriteProperty, error)
	IsFavorite(ctx context.Context, userID, propertyID primitive.ObjectID) (bool, error)
}

type favoriteService struct {
	db     *mongo.Database
	nowFun func() time.Time
}

// NewFavoriteService creates a new FavoriteService.
func NewFavoriteService(database *mongo.Database) IFavoriteService {
	return &favoriteService{
		db:     database,
		nowFun: func() time.Time { return time.Now().UTC() },
	}
}

func (s *favoriteService) collection() *mongo.Collection {
	return s.db.Collection(db.FavoritesCollection)
}

// Add bookmarks an existing property. Bookmarking it twice is a conflict.
func (s *favoriteService) Add(ctx context.Context, userID, propertyID primitive.ObjectID) (*models.Favorite, error) {
	n, err := s.db.Collection(db.PropertiesCollection).CountDocuments(ctx, bson.M{"_id": propertyID}, options.Count().SetLimit(1))
	if err != nil {
		return nil, storeError(err, "failed to look up property %s", propertyID.Hex())
	}
	if n == 0 {
		return nil, apperrors.NotFound("property")
	}

	favorite := &models.Favorite{
		ID:         primitive.NewObjectID(),
		UserID:     userID,
		PropertyID: propertyID,
		CreatedAt:  s.nowFun(),
	}
	if _, err := s.collection().InsertOne(ctx, favorite); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, apperrors.Conflict("property is already in favorites")
		}
		return nil, storeError(err, "failed to add favorite")
	}
	return favorite, nil
}

func (s *favoriteService) Remove(ctx context.Context, userID, propertyID primitive.ObjectID) error {
	result, err := s.collection().DeleteOne(ctx, bson.M{"userId": userID, "propertyId": propertyID})
	if err != nil {
		return storeError(err, "failed to remove favorite")
	}
	if result.DeletedCount == 0 {
		return apperrors.NotFound("favorite")
	}
	return nil
}

// List returns the user's favorites joined with their properties, newest first.
// Favorites whose property no longer exists are skipped.
func (s *favoriteService) List(ctx context.Context, userID primitive.ObjectID) ([]models.FavoriteProperty, error) {
	cursor, err := s.collection().Find(ctx,
		bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
	if err != nil {
		return nil, storeError(err, "failed to list favorites")
	}
	var favorites []models.Favorite
	if err := cursor.All(ctx, &favorites); err != nil {
		return nil, storeError(err, "failed to decode favorites")
	}
	if len(favorites) == 0 {
		return []models.FavoriteProperty{}, nil
	}

	ids := make([]primitive.ObjectID, len(favorites))
	for i, f := range favorites {
		ids[i] = f.PropertyID
	}
	propCursor, err := s.db.Collection(db.PropertiesCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, storeError(err, "failed to load favorite properties")
	}
	var properties []models.Property
	if err := propCursor.All(ctx, &properties); err != nil {
		return nil, storeError(err, "failed to decode favorite properties")
	}

	return joinFavorites(favorites, properties), nil
}

// joinFavorites pairs favorites with their properties in favorite order, dropping dangling ones.
func joinFavorites(favorites []models.Favorite, properties []models.Property) []models.FavoriteProperty {
	byID := make(map[primitive.ObjectID]*models.Property, len(properties))
	for i := range properties {
		byID[properties[i].ID] = &properties[i]
	}
	result := make([]models.FavoriteProperty, 0, len(favorites))
	for _, f := range favorites {
		property, ok := byID[f.PropertyID]
		if !ok {
			continue
		}
		result = append(result, models.FavoriteProperty{FavoritedAt: f.CreatedAt, Property: property})
	}
	return result
}

func (s *favoriteService) IsFavorite(ctx context.Context, userID, propertyID primitive.ObjectID) (bool, error) {
	n, err := s.collection().CountDocuments(ctx, bson.M{"userId": userID, "propertyId": propertyID}, options.Count().SetLimit(1))
	if err != nil {
		return false, storeError(err, "failed to check favorite")
	}
	return n > 0, nil
}
