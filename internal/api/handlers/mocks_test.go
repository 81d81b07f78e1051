package handlers_test

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
)

// --- Mocks ---

// MockPropertyService
type MockPropertyService struct {
	mock.Mock
}

func (m *MockPropertyService) property(args mock.Arguments) (*models.Property, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockPropertyService) Create(ctx context.Context, input services.PropertyInput, createdBy primitive.ObjectID) (*models.Property, error) {
	return m.property(m.Called(ctx, input, createdBy))
}
func (m *MockPropertyService) Update(ctx context.Context, id primitive.ObjectID, input services.PropertyUpdate) (*models.Property, error) {
	return m.property(m.Called(ctx, id, input))
}
func (m *MockPropertyService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	return m.property(m.Called(ctx, id))
}
func (m *MockPropertyService) FindBySlug(ctx context.Context, slug string, includeInactive bool) (*models.Property, error) {
	return m.property(m.Called(ctx, slug, includeInactive))
}
func (m *MockPropertyService) RecordView(ctx context.Context, id primitive.ObjectID, clientKey string) error {
	args := m.Called(ctx, id, clientKey)
	return args.Error(0)
}
func (m *MockPropertyService) Search(ctx context.Context, filter services.PropertyFilter, page models.PageRequest) (*models.Page[models.Property], error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[models.Property]), args.Error(1)
}
func (m *MockPropertyService) Similar(ctx context.Context, property *models.Property, limit int) ([]models.Property, error) {
	args := m.Called(ctx, property, limit)
	result, _ := args.Get(0).([]models.Property)
	return result, args.Error(1)
}
func (m *MockPropertyService) SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.Property, error) {
	return m.property(m.Called(ctx, id, active))
}
func (m *MockPropertyService) SetFeatured(ctx context.Context, id primitive.ObjectID, featured bool) (*models.Property, error) {
	return m.property(m.Called(ctx, id, featured))
}
func (m *MockPropertyService) AddImage(ctx context.Context, id primitive.ObjectID, image models.Image) (*models.Property, error) {
	return m.property(m.Called(ctx, id, image))
}
func (m *MockPropertyService) ReplaceImages(ctx context.Context, id primitive.ObjectID, images []models.Image) (*models.Property, error) {
	return m.property(m.Called(ctx, id, images))
}
func (m *MockPropertyService) RemoveImage(ctx context.Context, id primitive.ObjectID, publicID string) (*models.Property, *models.Image, error) {
	args := m.Called(ctx, id, publicID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Property), args.Get(1).(*models.Image), args.Error(2)
}
func (m *MockPropertyService) Delete(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	return m.property(m.Called(ctx, id))
}
func (m *MockPropertyService) SyncSequence(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockInquiryService
type MockInquiryService struct {
	mock.Mock
}

func (m *MockInquiryService) inquiry(args mock.Arguments) (*models.Inquiry, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Inquiry), args.Error(1)
}

func (m *MockInquiryService) Create(ctx context.Context, input services.InquiryInput) (*models.Inquiry, error) {
	return m.inquiry(m.Called(ctx, input))
}
func (m *MockInquiryService) Get(ctx context.Context, id primitive.ObjectID) (*models.Inquiry, error) {
	return m.inquiry(m.Called(ctx, id))
}
func (m *MockInquiryService) MarkRead(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockInquiryService) MarkUnread(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockInquiryService) ChangeStatus(ctx context.Context, id primitive.ObjectID, status models.InquiryStatus, actor models.Actor) (*models.Inquiry, error) {
	return m.inquiry(m.Called(ctx, id, status, actor))
}
func (m *MockInquiryService) AppendReply(ctx context.Context, id primitive.ObjectID, message string, isAdmin bool) (*models.Inquiry, error) {
	return m.inquiry(m.Called(ctx, id, message, isAdmin))
}
func (m *MockInquiryService) ListForAdmin(ctx context.Context, filter services.InquiryFilter, page models.PageRequest) (*models.Page[models.Inquiry], error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[models.Inquiry]), args.Error(1)
}
func (m *MockInquiryService) ListByEmail(ctx context.Context, email string, page models.PageRequest) (*models.Page[models.Inquiry], error) {
	args := m.Called(ctx, email, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[models.Inquiry]), args.Error(1)
}
func (m *MockInquiryService) CountUnread(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockInquiryService) CountByStatus(ctx context.Context) (map[models.InquiryStatus]int64, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).(map[models.InquiryStatus]int64)
	return result, args.Error(1)
}

// MockUserService
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) user(args mock.Arguments) (*models.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserService) Register(ctx context.Context, input services.RegisterInput) (*models.User, error) {
	return m.user(m.Called(ctx, input))
}
func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	return m.user(m.Called(ctx, email, password))
}
func (m *MockUserService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return m.user(m.Called(ctx, id))
}
func (m *MockUserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.user(m.Called(ctx, email))
}
func (m *MockUserService) UpdateProfile(ctx context.Context, id primitive.ObjectID, input services.ProfileInput) (*models.User, error) {
	return m.user(m.Called(ctx, id, input))
}
func (m *MockUserService) ChangePassword(ctx context.Context, id primitive.ObjectID, currentPassword, newPassword string) error {
	return m.Called(ctx, id, currentPassword, newPassword).Error(0)
}
func (m *MockUserService) List(ctx context.Context, filter services.UserFilter, page models.PageRequest) (*models.Page[models.User], error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[models.User]), args.Error(1)
}
func (m *MockUserService) SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) (*models.User, error) {
	return m.user(m.Called(ctx, id, role))
}
func (m *MockUserService) SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.User, error) {
	return m.user(m.Called(ctx, id, active))
}
func (m *MockUserService) Delete(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockUserService) EnsureAdmin(ctx context.Context, email, password, name string) (*models.User, error) {
	return m.user(m.Called(ctx, email, password, name))
}
func (m *MockUserService) Count(ctx context.Context, role models.Role) (int64, error) {
	args := m.Called(ctx, role)
	return args.Get(0).(int64), args.Error(1)
}

// MockFavoriteService
type MockFavoriteService struct {
	mock.Mock
}

func (m *MockFavoriteService) Add(ctx context.Context, userID, propertyID primitive.ObjectID) (*models.Favorite, error) {
	args := m.Called(ctx, userID, propertyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Favorite), args.Error(1)
}
func (m *MockFavoriteService) Remove(ctx context.Context, userID, propertyID primitive.ObjectID) error {
	return m.Called(ctx, userID, propertyID).Error(0)
}
func (m *MockFavoriteService) List(ctx context.Context, userID primitive.ObjectID) ([]models.FavoriteProperty, error) {
	args := m.Called(ctx, userID)
	result, _ := args.Get(0).([]models.FavoriteProperty)
	return result, args.Error(1)
}
func (m *MockFavoriteService) IsFavorite(ctx context.Context, userID, propertyID primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, userID, propertyID)
	return args.Bool(0), args.Error(1)
}

// MockBlogService
type MockBlogService struct {
	mock.Mock
}

func (m *MockBlogService) blog(args mock.Arguments) (*models.Blog, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Blog), args.Error(1)
}

func (m *MockBlogService) Create(ctx context.Context, input services.BlogInput) (*models.Blog, error) {
	return m.blog(m.Called(ctx, input))
}
func (m *MockBlogService) Update(ctx context.Context, id primitive.ObjectID, input services.BlogUpdate) (*models.Blog, error) {
	return m.blog(m.Called(ctx, id, input))
}
func (m *MockBlogService) Delete(ctx context.Context, id primitive.ObjectID) (*models.Blog, error) {
	return m.blog(m.Called(ctx, id))
}
func (m *MockBlogService) SetPublished(ctx context.Context, id primitive.ObjectID, published bool) (*models.Blog, error) {
	return m.blog(m.Called(ctx, id, published))
}
func (m *MockBlogService) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Blog, error) {
	return m.blog(m.Called(ctx, id))
}
func (m *MockBlogService) FindBySlug(ctx context.Context, slug string, includeUnpublished bool) (*models.Blog, error) {
	return m.blog(m.Called(ctx, slug, includeUnpublished))
}
func (m *MockBlogService) RecordView(ctx context.Context, id primitive.ObjectID) error {
	return m.Called(ctx, id).Error(0)
}
func (m *MockBlogService) List(ctx context.Context, filter services.BlogFilter, page models.PageRequest) (*models.Page[models.Blog], error) {
	args := m.Called(ctx, filter, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Page[models.Blog]), args.Error(1)
}
func (m *MockBlogService) Categories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	result, _ := args.Get(0).([]string)
	return result, args.Error(1)
}
func (m *MockBlogService) Count(ctx context.Context, onlyPublished bool) (int64, error) {
	args := m.Called(ctx, onlyPublished)
	return args.Get(0).(int64), args.Error(1)
}

// MockDashboardService
type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) Stats(ctx context.Context) (*services.DashboardStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.DashboardStats), args.Error(1)
}

// MockAssetStorage
type MockAssetStorage struct {
	mock.Mock
}

func (m *MockAssetStorage) PresignUpload(ctx context.Context, folder, filename, contentType string) (string, string, error) {
	args := m.Called(ctx, folder, filename, contentType)
	return args.String(0), args.String(1), args.Error(2)
}
func (m *MockAssetStorage) PublicURL(publicID string) string {
	return "https://cdn.example.com/" + publicID
}
func (m *MockAssetStorage) Get(ctx context.Context, publicID string) ([]byte, string, error) {
	args := m.Called(ctx, publicID)
	data, _ := args.Get(0).([]byte)
	return data, args.String(1), args.Error(2)
}
func (m *MockAssetStorage) Put(ctx context.Context, publicID string, data []byte, contentType string) error {
	return m.Called(ctx, publicID, data, contentType).Error(0)
}
func (m *MockAssetStorage) Delete(ctx context.Context, publicID string) error {
	return m.Called(ctx, publicID).Error(0)
}

// MockAsynqClient
type MockAsynqClient struct {
	mock.Mock
}

func (m *MockAsynqClient) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	mockArgs := []interface{}{ctx, task}
	for _, opt := range opts {
		mockArgs = append(mockArgs, opt)
	}
	args := m.Called(mockArgs...)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*asynq.TaskInfo), args.Error(1)
}

// taskOfType matches an enqueued task by its type name.
func taskOfType(taskType string) interface{} {
	return mock.MatchedBy(func(task *asynq.Task) bool {
		return task != nil && task.Type() == taskType
	})
}
