package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/config"
	"egharbari/api/internal/db"
	"egharbari/api/internal/identity"
	"egharbari/api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IBlogService manages editorial posts.
type IBlogService interface {
	Create(ctx context.Context, input BlogInput) (*models.Blog, error)
	Update(ctx context.Context, id primitive.ObjectID, input BlogUpdate) (*models.Blog, error)
	Delete(ctx context.Context, id primitive.ObjectID) (*models.Blog, error)
	SetPublished(ctx context.Context, id primitive.ObjectID, published bool) (*models.Blog, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Blog, error)
	FindBySlug(ctx context.Context, slug string, includeUnpublished bool) (*models.Blog, error)
	RecordView(ctx context.Context, id primitive.ObjectID) error
	List(ctx context.Context, filter BlogFilter, page models.PageRequest) (*models.Page[models.Blog], error)
	Categories(ctx context.Context) ([]string, error)
	Count(ctx context.Context, onlyPublished bool) (int64, error)
}

// BlogInput carries the fields of a new post.
type BlogInput struct {
	Title       string             `json:"title" validate:"required,max=200"`
	Excerpt     string             `json:"excerpt" validate:"max=500"`
	Content     string             `json:"content" validate:"required"`
	Category    string             `json:"category" validate:"max=100"`
	Tags        []string           `json:"tags" validate:"max=20,dive,max=50"`
	CoverImage  *models.CoverImage `json:"coverImage"`
	Author      string             `json:"author" validate:"max=100"`
	IsPublished bool               `json:"isPublished"`
}

// BlogUpdate is a partial update; nil fields are left unchanged.
type BlogUpdate struct {
	Title      *string            `json:"title" validate:"omitempty,min=1,max=200"`
	Excerpt    *string            `json:"excerpt" validate:"omitempty,max=500"`
	Content    *string            `json:"content" validate:"omitempty,min=1"`
	Category   *string            `json:"category" validate:"omitempty,max=100"`
	Tags       []string           `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	CoverImage *models.CoverImage `json:"coverImage"`
	Author     *string            `json:"author" validate:"omitempty,max=100"`
}

// BlogFilter narrows a blog listing.
type BlogFilter struct {
	Category      string
	Tag           string
	Query         string
	OnlyPublished bool
}

func (f BlogFilter) BSON() bson.M {
	filter := bson.M{}
	if f.OnlyPublished {
		filter["isPublished"] = true
	}
	if strings.TrimSpace(f.Category) != "" {
		filter["category"] = exactPattern(f.Category)
	}
	if strings.TrimSpace(f.Tag) != "" {
		filter["tags"] = exactPattern(f.Tag)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := containsPattern(q)
		filter["$or"] = bson.A{
			bson.M{"title": pattern},
			bson.M{"excerpt": pattern},
			bson.M{"content": pattern},
		}
	}
	return filter
}

type blogService struct {
	db     *mongo.Database
	cfg    *config.Config
	slugs  identity.Resolver
	nowFun func() time.Time
}

// NewBlogService creates a new BlogService.
func NewBlogService(database *mongo.Database, cfg *config.Config) IBlogService {
	return &blogService{
		db:     database,
		cfg:    cfg,
		slugs:  newSlugResolver(database.Collection(db.BlogsCollection), cfg.MaxSlugAttempts),
		nowFun: func() time.Time { return time.Now().UTC() },
	}
}

func (s *blogService) collection() *mongo.Collection {
	return s.db.Collection(db.BlogsCollection)
}

func blogFallbackSlug(id primitive.ObjectID) string {
	return "post-" + id.Hex()
}

// Create stores a post under a unique slug derived from its title.
func (s *blogService) Create(ctx context.Context, input BlogInput) (*models.Blog, error) {
	input.Title = strings.TrimSpace(input.Title)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	tags := input.Tags
	if tags == nil {
		tags = []string{}
	}

	var blog *models.Blog
	operation := func() error {
		now := s.nowFun()
		base := models.NewBase(now)
		slug, err := s.slugs.Resolve(ctx, identity.DeriveSlugOr(input.Title, blogFallbackSlug(base.ID)), "")
		if err != nil {
			return err
		}
		blog = &models.Blog{
			Base:        base,
			Slug:        slug,
			Title:       input.Title,
			Excerpt:     input.Excerpt,
			Content:     input.Content,
			Category:    strings.TrimSpace(input.Category),
			Tags:        tags,
			CoverImage:  input.CoverImage,
			Author:      input.Author,
			IsPublished: input.IsPublished,
		}
		if input.IsPublished {
			blog.PublishedAt = &now
		}
		_, err = s.collection().InsertOne(ctx, blog)
		return err
	}

	if err := db.WithRetries(operation, s.cfg.IdentityMaxRetries, db.IsMongoDuplicateKeyError); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, apperrors.Conflict("could not assign a unique slug after %d retries", s.cfg.IdentityMaxRetries)
		}
		return nil, storeError(err, "failed to insert blog %q", input.Title)
	}
	return blog, nil
}

// Update applies a partial update, refreshing the slug on a title change like properties do.
func (s *blogService) Update(ctx context.Context, id primitive.ObjectID, input BlogUpdate) (*models.Blog, error) {
	if input.Title != nil {
		trimmed := strings.TrimSpace(*input.Title)
		input.Title = &trimmed
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var updated models.Blog
	operation := func() error {
		existing, err := s.FindByID(ctx, id)
		if err != nil {
			return err
		}
		set := bson.M{"updatedAt": s.nowFun()}
		if input.Title != nil {
			set["title"] = *input.Title
			if identity.ShouldRefreshSlug(existing.Title, *input.Title, existing.Slug) {
				slug, err := s.slugs.Resolve(ctx, identity.DeriveSlugOr(*input.Title, blogFallbackSlug(existing.ID)), existing.ID.Hex())
				if err != nil {
					return err
				}
				set["slug"] = slug
			}
		}
		if input.Excerpt != nil {
			set["excerpt"] = *input.Excerpt
		}
		if input.Content != nil {
			set["content"] = *input.Content
		}
		if input.Category != nil {
			set["category"] = strings.TrimSpace(*input.Category)
		}
		if input.Tags != nil {
			set["tags"] = input.Tags
		}
		if input.CoverImage != nil {
			set["coverImage"] = input.CoverImage
		}
		if input.Author != nil {
			set["author"] = *input.Author
		}

		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		err = s.collection().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperrors.NotFound("blog")
		}
		return err
	}

	if err := db.WithRetries(operation, s.cfg.IdentityMaxRetries, db.IsMongoDuplicateKeyError); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, apperrors.Conflict("could not assign a unique slug after %d retries", s.cfg.IdentityMaxRetries)
		}
		return nil, storeError(err, "failed to update blog %s", id.Hex())
	}
	return &updated, nil
}

// Delete removes a post and returns it so its cover image can be released.
func (s *blogService) Delete(ctx context.Context, id primitive.ObjectID) (*models.Blog, error) {
	var deleted models.Blog
	err := s.collection().FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&deleted)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("blog")
		}
		return nil, storeError(err, "failed to delete blog %s", id.Hex())
	}
	return &deleted, nil
}

// SetPublished publishes or unpublishes a post. The first publication time is kept.
func (s *blogService) SetPublished(ctx context.Context, id primitive.ObjectID, published bool) (*models.Blog, error) {
	now := s.nowFun()
	update := bson.M{"$set": bson.M{"isPublished": published, "updatedAt": now}}
	if published {
		update["$min"] = bson.M{"publishedAt": now}
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Blog
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("blog")
		}
		return nil, storeError(err, "failed to publish blog %s", id.Hex())
	}
	return &updated, nil
}

func (s *blogService) findOne(ctx context.Context, filter bson.M) (*models.Blog, error) {
	var blog models.Blog
	err := s.collection().FindOne(ctx, filter).Decode(&blog)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("blog")
		}
		return nil, storeError(err, "error finding blog")
	}
	return &blog, nil
}

func (s *blogService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Blog, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindBySlug finds a post by slug; drafts are hidden unless includeUnpublished.
func (s *blogService) FindBySlug(ctx context.Context, slug string, includeUnpublished bool) (*models.Blog, error) {
	filter := bson.M{"slug": strings.ToLower(strings.TrimSpace(slug))}
	if !includeUnpublished {
		filter["isPublished"] = true
	}
	return s.findOne(ctx, filter)
}

func (s *blogService) RecordView(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.collection().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return storeError(err, "failed to record view for blog %s", id.Hex())
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("blog")
	}
	return nil
}

// List lists posts, most recently published first.
func (s *blogService) List(ctx context.Context, filter BlogFilter, page models.PageRequest) (*models.Page[models.Blog], error) {
	query := filter.BSON()
	total, err := s.collection().CountDocuments(ctx, query)
	if err != nil {
		return nil, storeError(err, "failed to count blogs")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "publishedAt", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))
	cursor, err := s.collection().Find(ctx, query, opts)
	if err != nil {
		return nil, storeError(err, "failed to list blogs")
	}
	var blogs []models.Blog
	if err := cursor.All(ctx, &blogs); err != nil {
		return nil, storeError(err, "failed to decode blogs")
	}
	result := models.NewPage(blogs, page, total)
	return &result, nil
}

// Categories returns the distinct categories of published posts, sorted.
func (s *blogService) Categories(ctx context.Context) ([]string, error) {
	values, err := s.collection().Distinct(ctx, "category", bson.M{"isPublished": true})
	if err != nil {
		return nil, storeError(err, "failed to list blog categories")
	}
	categories := make([]string, 0, len(values))
	for _, v := range values {
		if c, ok := v.(string); ok && c != "" {
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (s *blogService) Count(ctx context.Context, onlyPublished bool) (int64, error) {
	filter := bson.M{}
	if onlyPublished {
		filter["isPublished"] = true
	}
	n, err := s.collection().CountDocuments(ctx, filter)
	if err != nil {
		return 0, storeError(err, "failed to count blogs")
	}
	return n, nil
}
