package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Base carries the identity and timestamps shared by every stored document.
type Base struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// NewBase returns a Base with a fresh ObjectID, created and updated at now.
func NewBase(now time.Time) Base {
	return Base{
		ID:        primitive.NewObjectID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
