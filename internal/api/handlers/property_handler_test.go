package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"egharbari/api/internal/api/handlers"
	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
	"egharbari/api/internal/tasks"
)

func releasedIDs(t *testing.T, task *asynq.Task) []string {
	var payload tasks.AssetReleasePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	return payload.PublicIDs
}

func TestPropertyHandler_Search_OnlyActive(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	handler := handlers.NewPropertyHandler(propertySvc, nil, nil)

	r := gin.New()
	r.GET("/properties", handler.Search)

	page := models.NewPage([]models.Property{{PropertyID: "EGB-001", Name: "Hillside Home"}}, models.NewPageRequest(1, 12), 1)
	propertySvc.On("Search", mock.Anything, mock.MatchedBy(func(f services.PropertyFilter) bool {
		return f.OnlyActive && f.City == "Pokhara" && f.MinBedrooms != nil && *f.MinBedrooms == 3 &&
			f.MinPrice != nil && *f.MinPrice == 5000000
	}), models.NewPageRequest(1, 12)).Return(&page, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/properties?city=Pokhara&bedrooms=3&minPrice=5000000&page=1&limit=12", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	propertySvc.AssertExpectations(t)
}

func TestPropertyHandler_GetBySlug_RecordsView(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	handler := handlers.NewPropertyHandler(propertySvc, nil, nil)

	r := gin.New()
	r.GET("/properties/:slug", handler.GetBySlug)

	property := &models.Property{Base: models.Base{ID: primitive.NewObjectID()}, Slug: "hillside-home", Name: "Hillside Home", IsActive: true}
	propertySvc.On("FindBySlug", mock.Anything, "hillside-home", false).Return(property, nil)
	propertySvc.On("RecordView", mock.Anything, property.ID, mock.MatchedBy(func(key string) bool {
		return len(key) > 3 && key[:3] == "ip:"
	})).Return(nil).Once()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/properties/hillside-home", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hillside Home", decodeBody(t, w)["name"])
	propertySvc.AssertExpectations(t)
}

func TestPropertyHandler_GetBySlug_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	handler := handlers.NewPropertyHandler(propertySvc, nil, nil)

	r := gin.New()
	r.GET("/properties/:slug", handler.GetBySlug)

	propertySvc.On("FindBySlug", mock.Anything, "missing", false).Return(nil, apperrors.NotFound("property"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/properties/missing", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "property not found", body["error"])
	assert.Equal(t, "not_found", body["code"])
	propertySvc.AssertNotCalled(t, "RecordView", mock.Anything, mock.Anything, mock.Anything)
}

func TestPropertyHandler_UnexpectedErrorIsHidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	handler := handlers.NewPropertyHandler(propertySvc, nil, nil)

	r := gin.New()
	r.GET("/properties", handler.Search)

	propertySvc.On("Search", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.Unexpected(errors.New("connection reset"), "failed to search properties"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/properties", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "internal_error", body["code"])
	assert.NotContains(t, body["error"], "connection reset")
}

func TestPropertyHandler_Create_SchedulesImageProcessing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	taskClient := new(MockAsynqClient)
	handler := handlers.NewPropertyHandler(propertySvc, nil, taskClient)
	admin := models.Actor{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}

	r := gin.New()
	r.POST("/admin/properties", withActor(admin), handler.Create)

	created := &models.Property{
		Base:       models.Base{ID: primitive.NewObjectID()},
		PropertyID: "EGB-007",
		Images: []models.Image{
			{URL: "https://cdn.example.com/a.jpg", PublicID: "uploads/properties/a.jpg"},
			{URL: "https://cdn.example.com/b.jpg", PublicID: "uploads/properties/b.jpg"},
		},
	}
	propertySvc.On("Create", mock.Anything, mock.Anything, admin.UserID).Return(created, nil)
	taskClient.On("EnqueueContext", mock.Anything, taskOfType(tasks.TypeImageProcess)).
		Return(&asynq.TaskInfo{ID: "img"}, nil).Twice()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/admin/properties", gin.H{"name": "Lakeside Flat"}))

	assert.Equal(t, http.StatusCreated, w.Code)
	taskClient.AssertExpectations(t)
}

func TestPropertyHandler_Delete_ReleasesImages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	taskClient := new(MockAsynqClient)
	handler := handlers.NewPropertyHandler(propertySvc, nil, taskClient)

	r := gin.New()
	r.DELETE("/admin/properties/:id", handler.Delete)

	id := primitive.NewObjectID()
	propertySvc.On("Delete", mock.Anything, id).Return(&models.Property{
		Base:       models.Base{ID: id},
		PropertyID: "EGB-003",
		Images:     []models.Image{{PublicID: "p/1.jpg"}, {PublicID: "p/2.jpg"}},
	}, nil)

	var released []string
	taskClient.On("EnqueueContext", mock.Anything, taskOfType(tasks.TypeAssetRelease)).
		Run(func(args mock.Arguments) { released = releasedIDs(t, args.Get(1).(*asynq.Task)) }).
		Return(&asynq.TaskInfo{ID: "rel"}, nil).Once()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/admin/properties/"+id.Hex(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EGB-003", decodeBody(t, w)["propertyId"])
	assert.Equal(t, []string{"p/1.jpg", "p/2.jpg"}, released)
}

func TestPropertyHandler_Delete_NoImagesNoTask(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	taskClient := new(MockAsynqClient)
	handler := handlers.NewPropertyHandler(propertySvc, nil, taskClient)

	r := gin.New()
	r.DELETE("/admin/properties/:id", handler.Delete)

	id := primitive.NewObjectID()
	propertySvc.On("Delete", mock.Anything, id).Return(&models.Property{Base: models.Base{ID: id}}, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/admin/properties/"+id.Hex(), nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	taskClient.AssertNotCalled(t, "EnqueueContext", mock.Anything, mock.Anything)
}

func TestPropertyHandler_Update_ReleasesDroppedImages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	taskClient := new(MockAsynqClient)
	handler := handlers.NewPropertyHandler(propertySvc, nil, taskClient)

	r := gin.New()
	r.PUT("/admin/properties/:id", handler.Update)

	id := primitive.NewObjectID()
	propertySvc.On("FindByID", mock.Anything, id).Return(&models.Property{
		Base:   models.Base{ID: id},
		Images: []models.Image{{PublicID: "keep.jpg"}, {PublicID: "drop.jpg"}},
	}, nil)
	propertySvc.On("Update", mock.Anything, id, mock.Anything).Return(&models.Property{
		Base:   models.Base{ID: id},
		Images: []models.Image{{PublicID: "keep.jpg"}, {PublicID: "new.jpg"}},
	}, nil)

	var released []string
	taskClient.On("EnqueueContext", mock.Anything, taskOfType(tasks.TypeAssetRelease)).
		Run(func(args mock.Arguments) { released = releasedIDs(t, args.Get(1).(*asynq.Task)) }).
		Return(&asynq.TaskInfo{ID: "rel"}, nil).Once()
	taskClient.On("EnqueueContext", mock.Anything, mock.MatchedBy(func(task *asynq.Task) bool {
		var payload tasks.ImageProcessPayload
		return task.Type() == tasks.TypeImageProcess &&
			json.Unmarshal(task.Payload(), &payload) == nil && payload.PublicID == "new.jpg"
	})).Return(&asynq.TaskInfo{ID: "img"}, nil).Once()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPut, "/admin/properties/"+id.Hex(), gin.H{
		"images": []gin.H{
			{"url": "https://cdn.example.com/keep.jpg", "publicId": "keep.jpg"},
			{"url": "https://cdn.example.com/new.jpg", "publicId": "new.jpg"},
		},
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"drop.jpg"}, released)
	taskClient.AssertExpectations(t)
}

func TestPropertyHandler_SetActive_RequiresValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	handler := handlers.NewPropertyHandler(propertySvc, nil, nil)

	r := gin.New()
	r.PATCH("/admin/properties/:id/active", handler.SetActive)

	id := primitive.NewObjectID()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPatch, "/admin/properties/"+id.Hex()+"/active", gin.H{}))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	propertySvc.On("SetActive", mock.Anything, id, false).Return(&models.Property{Base: models.Base{ID: id}}, nil).Once()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPatch, "/admin/properties/"+id.Hex()+"/active", gin.H{"value": false}))
	assert.Equal(t, http.StatusOK, w.Code)
	propertySvc.AssertExpectations(t)
}

func TestPropertyHandler_UploadURL(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	store := new(MockAssetStorage)
	handler := handlers.NewPropertyHandler(propertySvc, store, nil)

	r := gin.New()
	r.POST("/admin/properties/:id/images/upload-url", handler.UploadURL)

	id := primitive.NewObjectID()
	propertySvc.On("FindByID", mock.Anything, id).Return(&models.Property{Base: models.Base{ID: id}}, nil)
	store.On("PresignUpload", mock.Anything, "properties", "front.jpg", "image/jpeg").
		Return("https://s3.example.com/signed", "uploads/properties/x_front.jpg", nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/admin/properties/"+id.Hex()+"/images/upload-url", gin.H{
		"filename": "front.jpg", "contentType": "image/jpeg",
	}))

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "https://s3.example.com/signed", body["uploadUrl"])
	assert.Equal(t, "uploads/properties/x_front.jpg", body["publicId"])
	assert.Equal(t, "https://cdn.example.com/uploads/properties/x_front.jpg", body["url"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, jsonRequest(t, http.MethodPost, "/admin/properties/"+id.Hex()+"/images/upload-url", gin.H{
		"filename": "notes.pdf", "contentType": "application/pdf",
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	store.AssertNumberOfCalls(t, "PresignUpload", 1)
}

func TestPropertyHandler_RemoveImage_WildcardPublicID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	propertySvc := new(MockPropertyService)
	taskClient := new(MockAsynqClient)
	handler := handlers.NewPropertyHandler(propertySvc, nil, taskClient)

	r := gin.New()
	r.DELETE("/admin/properties/:id/images/*publicId", handler.RemoveImage)

	id := primitive.NewObjectID()
	removed := &models.Image{PublicID: "uploads/properties/a.jpg"}
	propertySvc.On("RemoveImage", mock.Anything, id, "uploads/properties/a.jpg").
		Return(&models.Property{Base: models.Base{ID: id}}, removed, nil)
	taskClient.On("EnqueueContext", mock.Anything, taskOfType(tasks.TypeAssetRelease)).
		Return(&asynq.TaskInfo{ID: "rel"}, nil).Once()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/admin/properties/"+id.Hex()+"/images/uploads/properties/a.jpg", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	propertySvc.AssertExpectations(t)
	taskClient.AssertExpectations(t)
}
