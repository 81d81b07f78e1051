package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
	"egharbari/api/internal/storage"
	"egharbari/api/internal/tasks"
)

const similarLimit = 4

// PropertyHandler serves the public catalogue and the admin property endpoints.
type PropertyHandler struct {
	properties services.IPropertyService
	storage    storage.IAssetStorage
	taskClient IAsynqClient
}

func NewPropertyHandler(properties services.IPropertyService, assetStorage storage.IAssetStorage, taskClient IAsynqClient) *PropertyHandler {
	return &PropertyHandler{properties: properties, storage: assetStorage, taskClient: taskClient}
}

func propertyFilterFromQuery(c *gin.Context) services.PropertyFilter {
	return services.PropertyFilter{
		PropertyType: models.PropertyType(c.Query("propertyType")),
		ListingType:  models.ListingType(c.Query("listingType")),
		Status:       models.PropertyStatus(c.Query("status")),
		MinPrice:     queryFloat(c, "minPrice"),
		MaxPrice:     queryFloat(c, "maxPrice"),
		District:     c.Query("district"),
		City:         c.Query("city"),
		MinBedrooms:  queryInt(c, "bedrooms"),
		Featured:     queryBool(c, "featured"),
		Query:        c.Query("q"),
		Sort:         c.Query("sort"),
	}
}

// Search handles GET /properties. Only active properties are listed.
func (h *PropertyHandler) Search(c *gin.Context) {
	filter := propertyFilterFromQuery(c)
	filter.OnlyActive = true
	page, err := h.properties.Search(c.Request.Context(), filter, pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetBySlug handles GET /properties/:slug and counts the view.
func (h *PropertyHandler) GetBySlug(c *gin.Context) {
	ctx := c.Request.Context()
	property, err := h.properties.FindBySlug(ctx, c.Param("slug"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.properties.RecordView(ctx, property.ID, clientKey(c)); err != nil && !apperrors.IsNotFound(err) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, property)
}

// Similar handles GET /properties/:slug/similar.
func (h *PropertyHandler) Similar(c *gin.Context) {
	ctx := c.Request.Context()
	property, err := h.properties.FindBySlug(ctx, c.Param("slug"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	similar, err := h.properties.Similar(ctx, property, similarLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": similar})
}

// AdminList handles GET /admin/properties, inactive properties included.
func (h *PropertyHandler) AdminList(c *gin.Context) {
	filter := propertyFilterFromQuery(c)
	if active := queryBool(c, "isActive"); active != nil && *active {
		filter.OnlyActive = true
	}
	page, err := h.properties.Search(c.Request.Context(), filter, pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *PropertyHandler) AdminGet(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	property, err := h.properties.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, property)
}

// Create handles POST /admin/properties.
func (h *PropertyHandler) Create(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var input services.PropertyInput
	if !bindJSON(c, &input) {
		return
	}
	property, err := h.properties.Create(c.Request.Context(), input, actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.processImages(c, property, property.Images)
	c.JSON(http.StatusCreated, property)
}

// Update handles PUT /admin/properties/:id. Images dropped by the update are released.
func (h *PropertyHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	var input services.PropertyUpdate
	if !bindJSON(c, &input) {
		return
	}
	ctx := c.Request.Context()

	var before []models.Image
	if input.Images != nil {
		existing, err := h.properties.FindByID(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		before = existing.Images
	}

	property, err := h.properties.Update(ctx, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	if input.Images != nil {
		h.releaseImages(c, removedImages(before, property.Images))
		h.processImages(c, property, addedImages(before, property.Images))
	}
	c.JSON(http.StatusOK, property)
}

// Delete handles DELETE /admin/properties/:id and releases its images.
func (h *PropertyHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	deleted, err := h.properties.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.releaseImages(c, deleted.Images)
	c.JSON(http.StatusOK, gin.H{"message": "Property deleted", "propertyId": deleted.PropertyID})
}

type toggleRequest struct {
	Value *bool `json:"value"`
}

func (r toggleRequest) bind(c *gin.Context) (bool, bool) {
	if !bindJSON(c, &r) {
		return false, false
	}
	if r.Value == nil {
		respondError(c, apperrors.Validation("value is required"))
		return false, false
	}
	return *r.Value, true
}

// SetActive handles PATCH /admin/properties/:id/active.
func (h *PropertyHandler) SetActive(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	value, ok := toggleRequest{}.bind(c)
	if !ok {
		return
	}
	property, err := h.properties.SetActive(c.Request.Context(), id, value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, property)
}

// SetFeatured handles PATCH /admin/properties/:id/featured.
func (h *PropertyHandler) SetFeatured(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	value, ok := toggleRequest{}.bind(c)
	if !ok {
		return
	}
	property, err := h.properties.SetFeatured(c.Request.Context(), id, value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, property)
}

type uploadURLRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// UploadURL handles POST /admin/properties/:id/images/upload-url.
func (h *PropertyHandler) UploadURL(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	var req uploadURLRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Filename) == "" || !strings.HasPrefix(req.ContentType, "image/") {
		respondError(c, apperrors.Validation("filename and an image/* contentType are required"))
		return
	}
	ctx := c.Request.Context()
	if _, err := h.properties.FindByID(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	uploadURL, publicID, err := h.storage.PresignUpload(ctx, "properties", req.Filename, req.ContentType)
	if err != nil {
		respondError(c, apperrors.Unexpected(err, "failed to generate upload URL"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uploadUrl": uploadURL,
		"publicId":  publicID,
		"url":       h.storage.PublicURL(publicID),
	})
}

type addImageRequest struct {
	PublicID  string `json:"publicId"`
	Caption   string `json:"caption"`
	IsPrimary bool   `json:"isPrimary"`
}

// AddImage handles POST /admin/properties/:id/images after the client uploaded
// to the presigned URL, and schedules resizing.
func (h *PropertyHandler) AddImage(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	var req addImageRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.PublicID) == "" {
		respondError(c, apperrors.Validation("publicId is required"))
		return
	}
	image := models.Image{
		URL:       h.storage.PublicURL(req.PublicID),
		PublicID:  req.PublicID,
		Caption:   req.Caption,
		IsPrimary: req.IsPrimary,
	}
	property, err := h.properties.AddImage(c.Request.Context(), id, image)
	if err != nil {
		respondError(c, err)
		return
	}
	h.processImages(c, property, []models.Image{image})
	c.JSON(http.StatusCreated, property)
}

// ReplaceImages handles PUT /admin/properties/:id/images.
func (h *PropertyHandler) ReplaceImages(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	var req struct {
		Images []models.Image `json:"images"`
	}
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	existing, err := h.properties.FindByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	property, err := h.properties.ReplaceImages(ctx, id, req.Images)
	if err != nil {
		respondError(c, err)
		return
	}
	h.releaseImages(c, removedImages(existing.Images, property.Images))
	c.JSON(http.StatusOK, property)
}

// RemoveImage handles DELETE /admin/properties/:id/images/*publicId.
func (h *PropertyHandler) RemoveImage(c *gin.Context) {
	id, ok := pathID(c, "id", "property")
	if !ok {
		return
	}
	publicID := strings.TrimPrefix(c.Param("publicId"), "/")
	property, removed, err := h.properties.RemoveImage(c.Request.Context(), id, publicID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.releaseImages(c, []models.Image{*removed})
	c.JSON(http.StatusOK, property)
}

func (h *PropertyHandler) processImages(c *gin.Context, property *models.Property, images []models.Image) {
	for _, img := range images {
		if img.PublicID == "" {
			continue
		}
		task, err := tasks.NewImageProcessTask(tasks.ImageProcessPayload{
			PropertyID: property.ID.Hex(),
			PublicID:   img.PublicID,
		})
		enqueue(c.Request.Context(), h.taskClient, task, err)
	}
}

func (h *PropertyHandler) releaseImages(c *gin.Context, images []models.Image) {
	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.PublicID)
	}
	task, err := tasks.NewAssetReleaseTask(ids...)
	enqueue(c.Request.Context(), h.taskClient, task, err)
}

// removedImages returns the images of before whose publicId is absent from after.
func removedImages(before, after []models.Image) []models.Image {
	kept := make(map[string]bool, len(after))
	for _, img := range after {
		kept[img.PublicID] = true
	}
	var removed []models.Image
	for _, img := range before {
		if img.PublicID != "" && !kept[img.PublicID] {
			removed = append(removed, img)
		}
	}
	return removed
}

func addedImages(before, after []models.Image) []models.Image {
	return removedImages(after, before)
}
