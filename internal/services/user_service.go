package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/auth"
	"egharbari/api/internal/config"
	"egharbari/api/internal/db"
	"egharbari/api/internal/models"
	"egharbari/api/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IUserService defines the interface for user account operations.
type IUserService interface {
	Register(ctx context.Context, input RegisterInput) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, input ProfileInput) (*models.User, error)
	ChangePassword(ctx context.Context, id primitive.ObjectID, currentPassword, newPassword string) error
	List(ctx context.Context, filter UserFilter, page models.PageRequest) (*models.Page[models.User], error)
	SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) (*models.User, error)
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.User, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	EnsureAdmin(ctx context.Context, email, password, name string) (*models.User, error)
	Count(ctx context.Context, role models.Role) (int64, error)
}

// RegisterInput is a self-service sign-up.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Phone    string `json:"phone" validate:"max=20"`
}

// ProfileInput is a partial profile update.
type ProfileInput struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone *string `json:"phone" validate:"omitempty,max=20"`
}

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Role  models.Role
	Query string
}

// userService implements IUserService.
type userService struct {
	db             *mongo.Database
	cfg            *config.Config
	passwordRegexp *regexp.Regexp
	nowFun         func() time.Time
}

// NewUserService creates a new UserService.
func NewUserService(database *mongo.Database, cfg *config.Config) IUserService {
	re, err := regexp.Compile(cfg.PasswordRegexp)
	if err != nil {
		utils.Logger.WithError(err).Warnf("Invalid PASSWORD_REGEXP %q, requiring 6 characters", cfg.PasswordRegexp)
		re = regexp.MustCompile(`^.{6,}$`)
	}
	return &userService{
		db:             database,
		cfg:            cfg,
		passwordRegexp: re,
		nowFun:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *userService) collection() *mongo.Collection {
	return s.db.Collection(db.UsersCollection)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *userService) checkPassword(password string) error {
	if err := auth.CheckPasswordLength(password); err != nil {
		return apperrors.Validation("%s", err.Error())
	}
	if !s.passwordRegexp.MatchString(password) {
		return apperrors.Validation("password does not meet the requirements")
	}
	return nil
}

func (s *userService) insertUser(ctx context.Context, name, email, password, phone string, role models.Role) (*models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, apperrors.Unexpected(err, "internal error")
	}
	user := &models.User{
		Base:         models.NewBase(s.nowFun()),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Phone:        phone,
		Role:         role,
		IsActive:     true,
	}
	if _, err := s.collection().InsertOne(ctx, user); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, apperrors.Conflict("an account with email %s already exists", email)
		}
		return nil, storeError(err, "failed to insert user %s", email)
	}
	return user, nil
}

// Register creates a regular user account. Emails are unique, compared case-insensitively.
func (s *userService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if err := s.checkPassword(input.Password); err != nil {
		return nil, err
	}
	return s.insertUser(ctx, input.Name, input.Email, input.Password, input.Phone, models.RoleUser)
}

// Authenticate checks credentials and records the login time.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.FindByEmail(ctx, email)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthenticated("invalid email or password")
		}
		return nil, err
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, apperrors.Unauthenticated("invalid email or password")
	}
	if !user.IsActive {
		return nil, apperrors.Forbidden("account is deactivated")
	}

	now := s.nowFun()
	if _, err := s.collection().UpdateOne(ctx, bson.M{"_id": user.ID}, bson.M{"$set": bson.M{"lastLoginAt": now}}); err != nil {
		utils.Logger.WithError(err).Warnf("Failed to record login time for user %s", user.ID.Hex())
	} else {
		user.LastLoginAt = &now
	}
	return user, nil
}

func (s *userService) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.collection().FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("user")
		}
		return nil, storeError(err, "error finding user")
	}
	return &user, nil
}

func (s *userService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *userService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findOne(ctx, bson.M{"email": normalizeEmail(email)})
}

func (s *userService) setFields(ctx context.Context, id primitive.ObjectID, set bson.M) (*models.User, error) {
	set["updatedAt"] = s.nowFun()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.User
	err := s.collection().FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.NotFound("user")
		}
		return nil, storeError(err, "failed to update user %s", id.Hex())
	}
	return &updated, nil
}

// UpdateProfile changes the user's own name and phone.
func (s *userService) UpdateProfile(ctx context.Context, id primitive.ObjectID, input ProfileInput) (*models.User, error) {
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		input.Name = &trimmed
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}
	set := bson.M{}
	if input.Name != nil {
		set["name"] = *input.Name
	}
	if input.Phone != nil {
		set["phone"] = strings.TrimSpace(*input.Phone)
	}
	if len(set) == 0 {
		return nil, apperrors.Validation("no fields to update")
	}
	return s.setFields(ctx, id, set)
}

// ChangePassword replaces the password after verifying the current one.
func (s *userService) ChangePassword(ctx context.Context, id primitive.ObjectID, currentPassword, newPassword string) error {
	user, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperrors.Validation("current password is incorrect")
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return apperrors.Unexpected(err, "internal error")
	}
	_, err = s.setFields(ctx, id, bson.M{"password": hash})
	return err
}

// List lists users, newest first.
func (s *userService) List(ctx context.Context, filter UserFilter, page models.PageRequest) (*models.Page[models.User], error) {
	query := bson.M{}
	if filter.Role != "" {
		query["role"] = filter.Role
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		pattern := containsPattern(q)
		query["$or"] = bson.A{bson.M{"name": pattern}, bson.M{"email": pattern}}
	}

	total, err := s.collection().CountDocuments(ctx, query)
	if err != nil {
		return nil, storeError(err, "failed to count users")
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(page.Skip()).
		SetLimit(int64(page.Limit))
	cursor, err := s.collection().Find(ctx, query, opts)
	if err != nil {
		return nil, storeError(err, "failed to list users")
	}
	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, storeError(err, "failed to decode users")
	}
	result := models.NewPage(users, page, total)
	return &result, nil
}

func (s *userService) SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperrors.Validation("role must be user or admin")
	}
	return s.setFields(ctx, id, bson.M{"role": role})
}

func (s *userService) SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.User, error) {
	return s.setFields(ctx, id, bson.M{"isActive": active})
}

// Delete removes the user and their favorites. Inquiries are kept; they are owned by email.
func (s *userService) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := s.collection().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return storeError(err, "failed to delete user %s", id.Hex())
	}
	if result.DeletedCount == 0 {
		return apperrors.NotFound("user")
	}
	if _, err := s.db.Collection(db.FavoritesCollection).DeleteMany(ctx, bson.M{"userId": id}); err != nil {
		return storeError(err, "failed to delete favorites of user %s", id.Hex())
	}
	return nil
}

// EnsureAdmin creates the bootstrap administrator, or promotes and reactivates an existing
// account with that email. The stored password of an existing account is left unchanged.
func (s *userService) EnsureAdmin(ctx context.Context, email, password, name string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.Validation("admin email and password are required")
	}
	existing, err := s.FindByEmail(ctx, email)
	if err == nil {
		if existing.IsAdmin() && existing.IsActive {
			return existing, nil
		}
		utils.Logger.Infof("Promoting existing user %s to admin", email)
		return s.setFields(ctx, existing.ID, bson.M{"role": models.RoleAdmin, "isActive": true})
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}
	if name = strings.TrimSpace(name); name == "" {
		name = "Administrator"
	}
	utils.Logger.Infof("Creating bootstrap admin %s", email)
	return s.insertUser(ctx, name, email, password, "", models.RoleAdmin)
}

// Count counts users, optionally of one role.
func (s *userService) Count(ctx context.Context, role models.Role) (int64, error) {
	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}
	n, err := s.collection().CountDocuments(ctx, filter)
	if err != nil {
		return 0, storeError(err, "failed to count users")
	}
	return n, nil
}
