package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/config"
	"egharbari/api/internal/db"
	"egharbari/api/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Message length bounds, counted in characters after trimming.
const (
	MinInquiryMessageLength = 10
	MaxInquiryMessageLength = 5000
	MaxReplyLength          = 5000
)

// IInquiryService manages the inquiry lifecycle: creation, read state, status changes and the
// reply thread. ChangeStatus requires an admin actor; every other operation leaves
// authorization to the caller.
type IInquiryService interface {
	Create(ctx context.Context, input InquiryInput) (*models.Inquiry, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Inquiry, error)
	MarkRead(ctx context.Context, id primitive.ObjectID) error
	MarkUnread(ctx context.Context, id primitive.ObjectID) error
	ChangeStatus(ctx context.Context, id primitive.ObjectID, status models.InquiryStatus, actor models.Actor) (*models.Inquiry, error)
	AppendReply(ctx context.Context, id primitive.ObjectID, message string, isAdmin bool) (*models.Inquiry, error)
	ListForAdmin(ctx context.Context, filter InquiryFilter, page models.PageRequest) (*models.Page[models.Inquiry], error)
	ListByEmail(ctx context.Context, email string, page models.PageRequest) (*models.Page[models.Inquiry], error)
	CountUnread(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[models.InquiryStatus]int64, error)
}

// InquiryInput is a visitor's submission.
type InquiryInput struct {
	Type       models.InquiryType  `json:"type"`
	PropertyID string              `json:"propertyId"`
	Name       string              `json:"name" validate:"required,max=100"`
	Email      string              `json:"email" validate:"required,email"`
	Phone      string              `json:"phone" validate:"max=20"`
	Subject    string              `json:"subject" validate:"max=200"`
	Message    string              `json:"message"`
	UserID     *primitive.ObjectID `json:"-"`
}

// InquiryFilter narrows the admin inquiry listing.
type InquiryFilter struct {
	Status models.InquiryStatus
	Type   models.InquiryType
	IsRead *bool
	Query  string
}

// BSON renders the filter as a Mongo query.
func (f InquiryFilter) BSON() bson.M {
	filter := bson.M{}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.IsRead != nil {
		filter["isRead"] = *f.IsRead
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		pattern := containsPattern(q)
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
			bson.M{"subject": pattern},
		}
	}
	return filter
}

// inquiryService implements IInquiryService.
type inquiryService struct {
	db     *mongo.Database
	cfg    *config.Config
	nowFun func() time.Time
}

// NewInquiryService creates a new InquiryService.
func NewInquiryService(database *mongo.Database, cfg *config.Config) IInquiryService {
	return &inquiryService{
		db:     database,
		cfg:    cfg,
		nowFun: func() time.Time { return time.Now().UTC() },
	}
}

func (s *inquiryService) collection() *mongo.Collection {
	return s.db.Collection(db.InquiriesCollection)
}

func checkTextLength(field, text string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(text)
	if n < minLen {
		if minLen <= 1 {
			return apperrors.Validation("%s is required", field)
		}
		return apperrors.Validation("%s must be at least %d characters", field, minLen)
	}
	if n > maxLen {
		return apperrors.Validation("%s must be at most %d characters", field, maxLen)
	}
	return nil
}

// Create validates and stores a new inquiry in the pending, unread state with no replies.
// A property inquiry must reference an existing property; other types must not reference one.
func (s *inquiryService) Create(ctx context.Context, input InquiryInput) (*models.Inquiry, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Subject = strings.TrimSpace(input.Subject)
	input.Message = strings.TrimSpace(input.Message)
	input.PropertyID = strings.TrimSpace(input.PropertyID)
	if input.Type == "" {
		input.Type = models.InquiryTypeGeneral
	}

	if !input.Type.Valid() {
		return nil, apperrors.Validation("type must be one of general, property, support, feedback")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := checkTextLength("message", input.Message, MinInquiryMessageLength, MaxInquiryMessageLength); err != nil {
		return nil, err
	}

	inquiry := &models.Inquiry{
		Base:    models.NewBase(s.nowFun()),
		Type:    input.Type,
		UserID:  input.UserID,
		Name:    input.Name,
		Email:   input.Email,
		Phone:   input.Phone,
		Subject: input.Subject,
		Message: input.Message,
		Status:  models.InquiryStatusPending,
		IsRead:  false,
		Replies: []models.Reply{},
	}

	if input.Type == models.InquiryTypeProperty {
		if input.PropertyID == "" {
			return nil, apperrors.Validation("propertyId is required for property inquiries")
		}
		propertyID, err := ParseObjectID("property", input.PropertyID)
		if err != nil {
			return nil, err
		}
		var property models.Property
		err = s.db.Collection(db.PropertiesCollection).FindOne(ctx, bson.M{"_id": propertyID}).Decode(&property)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, apperrors.NotFound("property")
			}
			return nil, storeError(err, "failed to look up property %s", propertyID.Hex())
		}
		inquiry.PropertyID = &propertyID
		inquiry.Property = property.Ref()
		if inquiry.Subject == "" {
			inquiry.Subject = "Inquiry about " + property.Name
		}
	} else if input.PropertyID != "" {
		return nil, apperrors.Validation("propertyId is only allowed on property inquiries")
	}

	if inquiry.Subject == "" {
		return nil, apperrors.Validation("subject is required")
	}
	if utf8.RuneCountInString(inquiry.Subject) > 200 {
		inquiry.Subject = string([]rune(inquiry.Subject)[:200])
	}

	if _, err := s.collection().InsertOne(ctx, inquiry); err != nil {
		return nil, storeError(err, "failed to insert inquiry from %s", input.Email)
	}
	return inquiry, nil
}

// Get returns an inquiry by id.
func (s *inquiryService) Get(ctx context.Context, id primitive.ObjectID) (*models.Inquiry, error) {
	var inquiry models.Inquiry
	err := s.collection().FindOne(ctx, bson.M{"_id": id}).Decode(&inquiry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("inquiry")
		}
		return nil, storeError(err, "error finding inquiry %s", id.Hex())
	}
	return &inquiry, nil
}

func (s *inquiryService) setRead(ctx context.Context, id primitive.ObjectID, read bool) error {
	result, err := s.collection().UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"isRead": read}},
	)
	if err != nil {
		return storeError(err, "failed to update read state of inquiry %s", id.Hex())
	}
	if result.MatchedCount == 0 {
		return apperrors.NotFound("inquiry")
	}
	return nil
}

// MarkRead flags the inquiry as read. Calling it on a read inquiry is a no-op.
func (s *inquiryService) MarkRead(ctx context.Context, id primitive.ObjectID) error {
	return s.setRead(ctx, id, true)
}

// MarkUnread flags the inquiry as unread again.
func (s *inquiryService) MarkUnread(ctx context.Context, id primitive.ObjectID) error {
	return s.setRead(ctx, id, false)
}

// ChangeStatus moves the inquiry to any status, including its current one. Admin only.
func (s *inquiryService) ChangeStatus(ctx context.Context, id primitive.ObjectID, status models.InquiryStatus, actor models.Actor) (*models.Inquiry, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("only administrators may change inquiry status")
	}
	if !status.Valid() {
		return nil, apperrors.Validation("status must be one of pending, in_progress, resolved, closed")
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Inquiry
	err := s.collection().FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"status": status, "updatedAt": s.nowFun()}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("inquiry")
		}
		return nil, storeError(err, "failed to change status of inquiry %s", id.Hex())
	}
	return &updated, nil
}

// AppendReply appends a reply to the thread. Submitters cannot reply to a closed inquiry;
// the check is part of the update filter so it cannot race a concurrent close.
func (s *inquiryService) AppendReply(ctx context.Context, id primitive.ObjectID, message string, isAdmin bool) (*models.Inquiry, error) {
	message = strings.TrimSpace(message)
	if err := checkTextLength("message", message, 1, MaxReplyLength); err != nil {
		return nil, err
	}

	now := s.nowFun()
	filter := bson.M{"_id": id}
	if !isAdmin {
		filter["status"] = bson.M{"$ne": models.InquiryStatusClosed}
	}
	update := bson.M{
		"$push": bson.M{"replies": models.Reply{Message: message, IsAdmin: isAdmin, CreatedAt: now}},
		"$set":  bson.M{"updatedAt": now},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Inquiry
	err := s.collection().FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storeError(err, "failed to append reply to inquiry %s", id.Hex())
	}

	// Diagnose why the filter did not match.
	existing, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status == models.InquiryStatusClosed {
		return nil, apperrors.Validation("inquiry is closed and no longer accepts replies")
	}
	return nil, apperrors.Conflict("inquiry %s changed while replying, try again", id.Hex())
}

func (s *inquiryService) list(ctx context.Context, filter bson.M, page models.PageRequest) (*models.Page[models.Inquiry], error) {
	total, err := s.collection().CountDocuments(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to count inquiries")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))
	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, storeError(err, "failed to list inquiries")
	}
	var inquiries []models.Inquiry
	if err := cursor.All(ctx, &inquiries); err != nil {
		return nil, storeError(err, "failed to decode inquiries")
	}
	result := models.NewPage(inquiries, page, total)
	return &result, nil
}

// ListForAdmin lists all inquiries, newest first.
func (s *inquiryService) ListForAdmin(ctx context.Context, filter InquiryFilter, page models.PageRequest) (*models.Page[models.Inquiry], error) {
	return s.list(ctx, filter.BSON(), page)
}

// ListByEmail lists the inquiries submitted from an email address, newest first.
func (s *inquiryService) ListByEmail(ctx context.Context, email string, page models.PageRequest) (*models.Page[models.Inquiry], error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.Validation("email is required")
	}
	return s.list(ctx, bson.M{"email": email}, page)
}

func (s *inquiryService) CountUnread(ctx context.Context) (int64, error) {
	n, err := s.collection().CountDocuments(ctx, bson.M{"isRead": false})
	if err != nil {
		return 0, storeError(err, "failed to count unread inquiries")
	}
	return n, nil
}

// CountByStatus returns the number of inquiries in each status, zero-filled.
func (s *inquiryService) CountByStatus(ctx context.Context) (map[models.InquiryStatus]int64, error) {
	counts := make(map[models.InquiryStatus]int64, len(models.InquiryStatuses))
	for _, status := range models.InquiryStatuses {
		counts[status] = 0
	}

	cursor, err := s.collection().Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return nil, storeError(err, "failed to aggregate inquiry statuses")
	}
	var rows []struct {
		Status models.InquiryStatus `bson:"_id"`
		Count  int64                `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, storeError(err, "failed to decode inquiry status counts")
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
