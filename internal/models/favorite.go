package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Favorite is a user's bookmark of a property. The referenced property may have been
// deleted since; readers skip such entries instead of relying on cascade deletes.
type Favorite struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"userId" json:"userId"`
	PropertyID primitive.ObjectID `bson:"propertyId" json:"propertyId"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
}

// FavoriteProperty is a favorite joined with its still-existing property.
type FavoriteProperty struct {
	FavoritedAt time.Time `json:"favoritedAt"`
	Property    *Property `json:"property"`
}
