package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/cache"
	"egharbari/api/internal/config"
	"egharbari/api/internal/db"
	"egharbari/api/internal/identity"
	"egharbari/api/internal/models"
	"egharbari/api/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IPropertyService defines the interface for property-related operations.
type IPropertyService interface {
	Create(ctx context.Context, input PropertyInput, createdBy primitive.ObjectID) (*models.Property, error)
	Update(ctx context.Context, id primitive.ObjectID, input PropertyUpdate) (*models.Property, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error)
	FindBySlug(ctx context.Context, slug string, includeInactive bool) (*models.Property, error)
	RecordView(ctx context.Context, id primitive.ObjectID, clientKey string) error
	Search(ctx context.Context, filter PropertyFilter, page models.PageRequest) (*models.Page[models.Property], error)
	Similar(ctx context.Context, property *models.Property, limit int) ([]models.Property, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.Property, error)
	SetFeatured(ctx context.Context, id primitive.ObjectID, featured bool) (*models.Property, error)
	AddImage(ctx context.Context, id primitive.ObjectID, image models.Image) (*models.Property, error)
	ReplaceImages(ctx context.Context, id primitive.ObjectID, images []models.Image) (*models.Property, error)
	RemoveImage(ctx context.Context, id primitive.ObjectID, publicID string) (*models.Property, *models.Image, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*models.Property, error)
	SyncSequence(ctx context.Context) (int64, error)
}

// PropertyInput carries the fields an admin supplies when creating a property.
type PropertyInput struct {
	Name         string                `json:"name" validate:"required,max=200"`
	Description  string                `json:"description" validate:"max=10000"`
	PropertyType models.PropertyType   `json:"propertyType" validate:"required"`
	ListingType  models.ListingType    `json:"listingType" validate:"required"`
	Status       models.PropertyStatus `json:"status"`
	Price        float64               `json:"price" validate:"gte=0"`
	PriceUnit    models.PriceUnit      `json:"priceUnit"`
	Location     models.Location       `json:"location"`
	Features     models.Features       `json:"features"`
	Amenities    []string              `json:"amenities" validate:"max=50,dive,max=100"`
	Images       []models.Image        `json:"images" validate:"dive"`
	Featured     bool                  `json:"featured"`
	IsActive     *bool                 `json:"isActive"`
}

// PropertyUpdate is a partial update; nil fields are left unchanged.
type PropertyUpdate struct {
	Name         *string                `json:"name" validate:"omitempty,min=1,max=200"`
	Description  *string                `json:"description" validate:"omitempty,max=10000"`
	PropertyType *models.PropertyType   `json:"propertyType"`
	ListingType  *models.ListingType    `json:"listingType"`
	Status       *models.PropertyStatus `json:"status"`
	Price        *float64               `json:"price" validate:"omitempty,gte=0"`
	PriceUnit    *models.PriceUnit      `json:"priceUnit"`
	Location     *models.Location       `json:"location"`
	Features     *models.Features       `json:"features"`
	Amenities    []string               `json:"amenities" validate:"omitempty,max=50,dive,max=100"`
	Images       []models.Image         `json:"images" validate:"omitempty,dive"`
	Featured     *bool                  `json:"featured"`
	IsActive     *bool                  `json:"isActive"`
}

// Property search sort orders.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortPopular   = "popular"
)

// PropertyFilter narrows a property search. Zero values do not filter.
type PropertyFilter struct {
	PropertyType models.PropertyType
	ListingType  models.ListingType
	Status       models.PropertyStatus
	MinPrice     *float64
	MaxPrice     *float64
	District     string
	City         string
	MinBedrooms  *int
	Featured     *bool
	Query        string
	OnlyActive   bool
	Sort         string
}

// BSON renders the filter as a Mongo query.
func (f PropertyFilter) BSON() bson.M {
	filter := bson.M{}
	if f.OnlyActive {
		filter["isActive"] = true
	}
	if f.PropertyType != "" {
		filter["propertyType"] = f.PropertyType
	}
	if f.ListingType != "" {
		filter["listingType"] = f.ListingType
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	if strings.TrimSpace(f.District) != "" {
		filter["location.district"] = exactPattern(f.District)
	}
	if strings.TrimSpace(f.City) != "" {
		filter["location.city"] = exactPattern(f.City)
	}
	if f.MinBedrooms != nil {
		filter["features.bedrooms"] = bson.M{"$gte": *f.MinBedrooms}
	}
	if f.Featured != nil {
		filter["featured"] = *f.Featured
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := containsPattern(q)
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"location.address": pattern},
		}
	}
	return filter
}

// SortBSON maps a sort name to a Mongo sort document, defaulting to newest first.
func (f PropertyFilter) SortBSON() bson.D {
	switch f.Sort {
	case SortOldest:
		return bson.D{{Key: "createdAt", Value: 1}}
	case SortPriceAsc:
		return bson.D{{Key: "price", Value: 1}, {Key: "createdAt", Value: -1}}
	case SortPriceDesc:
		return bson.D{{Key: "price", Value: -1}, {Key: "createdAt", Value: -1}}
	case SortPopular:
		return bson.D{{Key: "views", Value: -1}, {Key: "createdAt", Value: -1}}
	}
	return bson.D{{Key: "featured", Value: -1}, {Key: "createdAt", Value: -1}}
}

// propertyService implements IPropertyService.
type propertyService struct {
	db     *mongo.Database
	cfg    *config.Config
	views  cache.ViewDeduper
	slugs  identity.Resolver
	nowFun func() time.Time
}

// NewPropertyService creates a new PropertyService. views may be nil, in which case every
// view is counted.
func NewPropertyService(database *mongo.Database, cfg *config.Config, views cache.ViewDeduper) IPropertyService {
	return &propertyService{
		db:     database,
		cfg:    cfg,
		views:  views,
		slugs:  newSlugResolver(database.Collection(db.PropertiesCollection), cfg.MaxSlugAttempts),
		nowFun: func() time.Time { return time.Now().UTC() },
	}
}

func (s *propertyService) collection() *mongo.Collection {
	return s.db.Collection(db.PropertiesCollection)
}

func validatePropertyEnums(propertyType models.PropertyType, listingType models.ListingType, status models.PropertyStatus, unit models.PriceUnit) error {
	if !propertyType.Valid() {
		return apperrors.Validation("propertyType must be one of house, apartment, land, commercial, villa")
	}
	if !listingType.Valid() {
		return apperrors.Validation("listingType must be one of sale, rent, lease")
	}
	if !status.Valid() {
		return apperrors.Validation("status must be one of available, pending, sold, rented")
	}
	if !unit.Valid() {
		return apperrors.Validation("priceUnit must be one of total, per_month, per_year, per_sqft, per_aana")
	}
	return nil
}

// Create assigns the property code and slug and inserts the property. A duplicate key on
// either is retried with a fresh sequence number and a fresh slug read.
func (s *propertyService) Create(ctx context.Context, input PropertyInput, createdBy primitive.ObjectID) (*models.Property, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Status == "" {
		input.Status = models.PropertyStatusAvailable
	}
	if input.PriceUnit == "" {
		input.PriceUnit = models.PriceUnitTotal
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := validatePropertyEnums(input.PropertyType, input.ListingType, input.Status, input.PriceUnit); err != nil {
		return nil, err
	}

	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	amenities := input.Amenities
	if amenities == nil {
		amenities = []string{}
	}

	var property *models.Property
	operation := func() error {
		seq, err := db.NextSequence(ctx, s.db, db.PropertySequence)
		if err != nil {
			return err
		}
		propertyID, err := identity.AssignPropertyID(input.PropertyType, seq)
		if err != nil {
			return err
		}
		slug, err := s.slugs.Resolve(ctx, identity.DeriveSlugOr(input.Name, propertyID), "")
		if err != nil {
			return err
		}

		property = &models.Property{
			Base:         models.NewBase(s.nowFun()),
			PropertyID:   propertyID,
			Slug:         slug,
			Name:         input.Name,
			Description:  input.Description,
			PropertyType: input.PropertyType,
			ListingType:  input.ListingType,
			Status:       input.Status,
			Price:        input.Price,
			PriceUnit:    input.PriceUnit,
			Location:     input.Location,
			Features:     input.Features,
			Amenities:    amenities,
			Images:       models.NormalizeImages(input.Images),
			Featured:     input.Featured,
			IsActive:     isActive,
			Views:        0,
			CreatedBy:    createdBy,
		}
		_, err = s.collection().InsertOne(ctx, property)
		return err
	}

	if err := db.WithRetries(operation, s.cfg.IdentityMaxRetries, db.IsMongoDuplicateKeyError); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, apperrors.Conflict("could not assign a unique property id and slug after %d retries", s.cfg.IdentityMaxRetries)
		}
		return nil, storeError(err, "failed to insert property %q", input.Name)
	}

	utils.Logger.Infof("Created property %s", property)
	return property, nil
}

// Update applies a partial update. The slug is refreshed only when the name changes and the
// derived candidate differs from the stored slug; propertyId never changes.
func (s *propertyService) Update(ctx context.Context, id primitive.ObjectID, input PropertyUpdate) (*models.Property, error) {
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var updated models.Property
	operation := func() error {
		existing, err := s.FindByID(ctx, id)
		if err != nil {
			return err
		}

		set := bson.M{"updatedAt": s.nowFun()}
		propertyType, listingType, status, unit := existing.PropertyType, existing.ListingType, existing.Status, existing.PriceUnit

		if input.Name != nil {
			set["name"] = *input.Name
			if identity.ShouldRefreshSlug(existing.Name, *input.Name, existing.Slug) {
				slug, err := s.slugs.Resolve(ctx, identity.DeriveSlugOr(*input.Name, existing.PropertyID), existing.ID.Hex())
				if err != nil {
					return err
				}
				set["slug"] = slug
			}
		}
		if input.Description != nil {
			set["description"] = *input.Description
		}
		if input.PropertyType != nil {
			propertyType = *input.PropertyType
			set["propertyType"] = propertyType
		}
		if input.ListingType != nil {
			listingType = *input.ListingType
			set["listingType"] = listingType
		}
		if input.Status != nil {
			status = *input.Status
			set["status"] = status
		}
		if input.PriceUnit != nil {
			unit = *input.PriceUnit
			set["priceUnit"] = unit
		}
		if err := validatePropertyEnums(propertyType, listingType, status, unit); err != nil {
			return err
		}
		if input.Price != nil {
			set["price"] = *input.Price
		}
		if input.Location != nil {
			set["location"] = *input.Location
		}
		if input.Features != nil {
			set["features"] = *input.Features
		}
		if input.Amenities != nil {
			set["amenities"] = input.Amenities
		}
		if input.Images != nil {
			set["images"] = models.NormalizeImages(input.Images)
		}
		if input.Featured != nil {
			set["featured"] = *input.Featured
		}
		if input.IsActive != nil {
			set["isActive"] = *input.IsActive
		}

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		err = s.collection().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperrors.NotFound("property")
		}
		return err
	}

	if err := db.WithRetries(operation, s.cfg.IdentityMaxRetries, db.IsMongoDuplicateKeyError); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, apperrors.Conflict("could not assign a unique slug after %d retries", s.cfg.IdentityMaxRetries)
		}
		return nil, storeError(err, "failed to update property %s", id.Hex())
	}
	return &updated, nil
}

func (s *propertyService) findOne(ctx context.Context, filter bson.M) (*models.Property, error) {
	var property models.Property
	err := s.collection().FindOne(ctx, filter).Decode(&property)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("property")
		}
		return nil, storeError(err, "error finding property")
	}
	return &property, nil
}

// FindByID finds a property by its ID regardless of its active flag.
func (s *propertyService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindBySlug finds a property by slug. Inactive properties are hidden unless includeInactive.
func (s *propertyService) FindBySlug(ctx context.Context, slug string, includeInactive bool) (*models.Property, error) {
	filter := bson.M{"slug": strings.ToLower(strings.TrimSpace(slug))}
	if !includeInactive {
		filter["isActive"] = true
	}
	return s.findOne(ctx, filter)
}

// RecordView atomically increments the view counter, at most once per client per
// de-duplication window. When the de-duplication store fails the view is counted.
func (s *propertyService) RecordView(ctx context.Context, id primitive.ObjectID, clientKey string) error {
	if s.views != nil && clientKey != "" {
		first, err := s.views.FirstView(ctx, "property:"+id.Hex(), clientKey)
		if err != nil {
			utils.Logger.WithError(err).Warn("View de-duplication unavailable, counting view")
		} else if !first {
			return nil
		}
	}

	result, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return storeError(err, "failed to record view for property %s", id.Hex())
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("property")
	}
	return nil
}

// Search lists properties matching the filter, one page at a time.
func (s *propertyService) Search(ctx context.Context, filter PropertyFilter, page models.PageRequest) (*models.Page[models.Property], error) {
	query := filter.BSON()
	total, err := s.collection().CountDocuments(ctx, query)
	if err != nil {
		return nil, storeError(err, "failed to count properties")
	}

	opts := options.Find().
		SetSort(filter.SortBSON()).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))
	cursor, err := s.collection().Find(ctx, query, opts)
	if err != nil {
		return nil, storeError(err, "failed to search properties")
	}
	var properties []models.Property
	if err := cursor.All(ctx, &properties); err != nil {
		return nil, storeError(err, "failed to decode properties")
	}

	result := models.NewPage(properties, page, total)
	return &result, nil
}

// Similar returns active properties sharing the type or district of property, excluding it.
func (s *propertyService) Similar(ctx context.Context, property *models.Property, limit int) ([]models.Property, error) {
	if limit <= 0 {
		limit = 4
	}
	filter := bson.M{
		"_id":      bson.M{"$ne": property.ID},
		"isActive": true,
		"$or": bson.A{
			bson.M{"propertyType": property.PropertyType},
			bson.M{"location.district": property.Location.District},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "featured", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError(err, "failed to find similar properties")
	}
	properties := []models.Property{}
	if err := cursor.All(ctx, &properties); err != nil {
		return nil, storeError(err, "failed to decode similar properties")
	}
	return properties, nil
}

func (s *propertyService) setFields(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.Property, error) {
	set["updatedAt"] = s.nowFun()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Property
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("property")
		}
		return nil, storeError(err, "failed to update property %s", id.Hex())
	}
	return &updated, nil
}

// SetActive soft-activates or deactivates a property.
func (s *propertyService) SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.Property, error) {
	return s.setFields(ctx, id, bson.M{"isActive": active})
}

func (s *propertyService) SetFeatured(ctx context.Context, id primitive.ObjectID, featured bool) (*models.Property, error) {
	return s.setFields(ctx, id, bson.M{"featured": featured})
}

// AddImage appends an image. Flagging it primary demotes the current primary image.
func (s *propertyService) AddImage(ctx context.Context, id primitive.ObjectID, image models.Image) (*models.Property, error) {
	if err := validateInput(image); err != nil {
		return nil, err
	}
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	images := existing.Images
	if image.IsPrimary {
		for i := range images {
			images[i].IsPrimary = false
		}
	}
	images = append(images, image)
	return s.setFields(ctx, id, bson.M{"images": models.NormalizeImages(images)})
}

// ReplaceImages overwrites the ordered image list.
func (s *propertyService) ReplaceImages(ctx context.Context, id primitive.ObjectID, images []models.Image) (*models.Property, error) {
	for _, image := range images {
		if err := validateInput(image); err != nil {
			return nil, err
		}
	}
	return s.setFields(ctx, id, bson.M{"images": models.NormalizeImages(images)})
}

// RemoveImage drops the image with the given publicId and returns it so its asset can be released.
func (s *propertyService) RemoveImage(ctx context.Context, id primitive.ObjectID, publicID string) (*models.Property, *models.Image, error) {
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var removed *models.Image
	kept := make([]models.Image, 0, len(existing.Images))
	for _, image := range existing.Images {
		if removed == nil && image.PublicID == publicID {
			img := image
			removed = &img
			continue
		}
		kept = append(kept, image)
	}
	if removed == nil {
		return nil, nil, apperrors.NotFound("image")
	}
	updated, err := s.setFields(ctx, id, bson.M{"images": models.NormalizeImages(kept)})
	if err != nil {
		return nil, nil, err
	}
	return updated, removed, nil
}

// Delete hard-deletes a property and returns it so the caller can release its assets.
// Favorites pointing at it are left in place and skipped when read.
func (s *propertyService) Delete(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	var deleted models.Property
	err := s.collection().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("property")
		}
		return nil, storeError(err, "failed to delete property %s", id.Hex())
	}
	utils.Logger.Infof("Deleted property %s", &deleted)
	return &deleted, nil
}

// SyncSequence raises the property counter to at least the number of stored properties and
// the highest ordinal already issued, and returns the counter's resulting value.
func (s *propertyService) SyncSequence(ctx context.Context) (int64, error) {
	count, err := s.collection().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, storeError(err, "failed to count properties")
	}

	floor := count
	cursor, err := s.collection().Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"propertyId": 1}))
	if err != nil {
		return 0, storeError(err, "failed to scan property ids")
	}
	defer cursor.Close(ctx)
	for cursor.Next(ctx) {
		var doc struct {
			PropertyID string `bson:"propertyId"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return 0, storeError(err, "failed to decode property id")
		}
		if seq := PropertyIDOrdinal(doc.PropertyID); seq > floor {
			floor = seq
		}
	}
	if err := cursor.Err(); err != nil {
		return 0, storeError(err, "failed to scan property ids")
	}

	if err := db.SeedSequence(ctx, s.db, db.PropertySequence, floor); err != nil {
		return 0, storeError(err, "failed to seed property sequence")
	}
	current, err := db.CurrentSequence(ctx, s.db, db.PropertySequence)
	if err != nil {
		return 0, storeError(err, "failed to read property sequence")
	}
	utils.Logger.Debugf("Property sequence at %d (floor from stored data %d)", current, floor)
	return current, nil
}

// PropertyIDOrdinal extracts the trailing ordinal of a property code, 0 when malformed.
func PropertyIDOrdinal(propertyID string) int64 {
	idx := strings.LastIndex(propertyID, "-")
	if idx < 0 {
		return 0
	}
	seq, err := strconv.ParseInt(propertyID[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return seq
}
