package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"egharbari/api/internal/api/handlers"
	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/auth"
	"egharbari/api/internal/config"
	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
)

const testJwtSecret = "handler-test-secret"

func userTestConfig() *config.Config {
	return &config.Config{JwtSecret: testJwtSecret, JwtTTL: time.Hour}
}

func TestUserHandler_Register_IssuesToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userSvc := new(MockUserService)
	handler := handlers.NewUserHandler(userTestConfig(), userSvc)

	r := gin.New()
	r.POST("/auth/register", handler.Register)

	user := &models.User{Base: models.Base{ID: primitive.NewObjectID()}, Name: "Sita", Email: "sita@example.com", Role: models.RoleUser, IsActive: true}
	userSvc.On("Register", mock.Anything, services.RegisterInput{Name: "Sita", Email: "sita@example.com", Password: "s3cret-pass"}).Return(user, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/auth/register", gin.H{
		"name": "Sita", "email": "sita@example.com", "password": "s3cret-pass",
	}))

	require.Equal(t, http.StatusCreated, w.Code)
	body := decodeBody(t, w)
	token, ok := body["token"].(string)
	require.True(t, ok)
	claims, err := auth.ValidateJWT(token, testJwtSecret)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)

	returned := body["user"].(map[string]interface{})
	assert.Equal(t, "sita@example.com", returned["email"])
	assert.NotContains(t, returned, "password")
}

func TestUserHandler_Register_DuplicateEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userSvc := new(MockUserService)
	handler := handlers.NewUserHandler(userTestConfig(), userSvc)

	r := gin.New()
	r.POST("/auth/register", handler.Register)

	userSvc.On("Register", mock.Anything, mock.Anything).Return(nil, apperrors.Conflict("a user with this email already exists"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/auth/register", gin.H{"name": "A", "email": "a@b.co", "password": "password1"}))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decodeBody(t, w)["code"])
}

func TestUserHandler_Login(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userSvc := new(MockUserService)
	handler := handlers.NewUserHandler(userTestConfig(), userSvc)

	r := gin.New()
	r.POST("/auth/login", handler.Login)

	admin := &models.User{Base: models.Base{ID: primitive.NewObjectID()}, Email: "admin@egharbari.com", Role: models.RoleAdmin, IsActive: true}
	userSvc.On("Authenticate", mock.Anything, "admin@egharbari.com", "right").Return(admin, nil)
	userSvc.On("Authenticate", mock.Anything, "admin@egharbari.com", "wrong").Return(nil, apperrors.Unauthenticated("invalid email or password"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/auth/login", gin.H{"email": "admin@egharbari.com", "password": "right"}))
	require.Equal(t, http.StatusOK, w.Code)
	claims, err := auth.ValidateJWT(decodeBody(t, w)["token"].(string), testJwtSecret)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/auth/login", gin.H{"email": "admin@egharbari.com", "password": "wrong"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", decodeBody(t, w)["code"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/auth/login", gin.H{"email": "admin@egharbari.com"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	userSvc.AssertNumberOfCalls(t, "Authenticate", 2)
}

func TestUserHandler_Me_RequiresActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userSvc := new(MockUserService)
	handler := handlers.NewUserHandler(userTestConfig(), userSvc)

	r := gin.New()
	r.GET("/me", handler.Me)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUserHandler_AdminCannotChangeOwnAccount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userSvc := new(MockUserService)
	handler := handlers.NewUserHandler(userTestConfig(), userSvc)
	admin := models.Actor{UserID: primitive.NewObjectID(), Email: "admin@egharbari.com", Role: models.RoleAdmin}

	r := gin.New()
	r.PATCH("/admin/users/:id/role", withActor(admin), handler.SetRole)
	r.DELETE("/admin/users/:id", withActor(admin), handler.Delete)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPatch, "/admin/users/"+admin.UserID.Hex()+"/role", gin.H{"role": "user"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/admin/users/"+admin.UserID.Hex(), nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	userSvc.AssertNotCalled(t, "SetRole", mock.Anything, mock.Anything, mock.Anything)
	userSvc.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestUserHandler_SetRole_OtherUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	userSvc := new(MockUserService)
	handler := handlers.NewUserHandler(userTestConfig(), userSvc)
	admin := models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}

	r := gin.New()
	r.PATCH("/admin/users/:id/role", withActor(admin), handler.SetRole)

	target := primitive.NewObjectID()
	userSvc.On("SetRole", mock.Anything, target, models.RoleAdmin).
		Return(&models.User{Base: models.Base{ID: target}, Role: models.RoleAdmin}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPatch, "/admin/users/"+target.Hex()+"/role", gin.H{"role": "admin"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", decodeBody(t, w)["role"])
	userSvc.AssertExpectations(t)
}
