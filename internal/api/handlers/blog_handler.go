package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
	"egharbari/api/internal/tasks"
)

// BlogHandler serves published posts and the admin blog editor.
type BlogHandler struct {
	blogs      services.IBlogService
	taskClient IAsynqClient
}

func NewBlogHandler(blogs services.IBlogService, taskClient IAsynqClient) *BlogHandler {
	return &BlogHandler{blogs: blogs, taskClient: taskClient}
}

func blogFilterFromQuery(c *gin.Context) services.BlogFilter {
	return services.BlogFilter{
		Category: c.Query("category"),
		Tag:      c.Query("tag"),
		Query:    c.Query("q"),
	}
}

// List handles GET /blogs.
func (h *BlogHandler) List(c *gin.Context) {
	filter := blogFilterFromQuery(c)
	filter.OnlyPublished = true
	page, err := h.blogs.List(c.Request.Context(), filter, pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Categories handles GET /blogs/categories.
func (h *BlogHandler) Categories(c *gin.Context) {
	categories, err := h.blogs.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": categories})
}

// GetBySlug handles GET /blogs/:slug and counts the view.
func (h *BlogHandler) GetBySlug(c *gin.Context) {
	ctx := c.Request.Context()
	blog, err := h.blogs.FindBySlug(ctx, c.Param("slug"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.blogs.RecordView(ctx, blog.ID); err != nil && !apperrors.IsNotFound(err) {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, blog)
}

// AdminList handles GET /admin/blogs, drafts included.
func (h *BlogHandler) AdminList(c *gin.Context) {
	filter := blogFilterFromQuery(c)
	if published := queryBool(c, "isPublished"); published != nil && *published {
		filter.OnlyPublished = true
	}
	page, err := h.blogs.List(c.Request.Context(), filter, pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *BlogHandler) AdminGet(c *gin.Context) {
	id, ok := pathID(c, "id", "blog")
	if !ok {
		return
	}
	blog, err := h.blogs.FindByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, blog)
}

// Create handles POST /admin/blogs.
func (h *BlogHandler) Create(c *gin.Context) {
	var input services.BlogInput
	if !bindJSON(c, &input) {
		return
	}
	blog, err := h.blogs.Create(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, blog)
}

// Update handles PUT /admin/blogs/:id. A replaced cover image is released.
func (h *BlogHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id", "blog")
	if !ok {
		return
	}
	var input services.BlogUpdate
	if !bindJSON(c, &input) {
		return
	}
	ctx := c.Request.Context()

	var oldCover *models.CoverImage
	if input.CoverImage != nil {
		existing, err := h.blogs.FindByID(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		oldCover = existing.CoverImage
	}

	blog, err := h.blogs.Update(ctx, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	if oldCover != nil && oldCover.PublicID != input.CoverImage.PublicID {
		h.releaseCover(c, oldCover)
	}
	c.JSON(http.StatusOK, blog)
}

// Delete handles DELETE /admin/blogs/:id.
func (h *BlogHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id", "blog")
	if !ok {
		return
	}
	deleted, err := h.blogs.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	h.releaseCover(c, deleted.CoverImage)
	c.JSON(http.StatusOK, gin.H{"message": "Blog deleted", "slug": deleted.Slug})
}

// SetPublished handles PATCH /admin/blogs/:id/published.
func (h *BlogHandler) SetPublished(c *gin.Context) {
	id, ok := pathID(c, "id", "blog")
	if !ok {
		return
	}
	value, ok := toggleRequest{}.bind(c)
	if !ok {
		return
	}
	blog, err := h.blogs.SetPublished(c.Request.Context(), id, value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, blog)
}

func (h *BlogHandler) releaseCover(c *gin.Context, cover *models.CoverImage) {
	if cover == nil {
		return
	}
	task, err := tasks.NewAssetReleaseTask(cover.PublicID)
	enqueue(c.Request.Context(), h.taskClient, task, err)
}
