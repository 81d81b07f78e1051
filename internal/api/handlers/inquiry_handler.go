package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"egharbari/api/internal/api/middleware"
	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
	"egharbari/api/internal/tasks"
)

// InquiryHandler serves inquiry submission, the submitter's own thread and the admin inbox.
type InquiryHandler struct {
	inquiries  services.IInquiryService
	taskClient IAsynqClient
}

func NewInquiryHandler(inquiries services.IInquiryService, taskClient IAsynqClient) *InquiryHandler {
	return &InquiryHandler{inquiries: inquiries, taskClient: taskClient}
}

func (h *InquiryHandler) notify(ctx context.Context, inquiry *models.Inquiry, templateID, reply string) {
	task, err := tasks.NewInquiryNotifyTask(tasks.InquiryNotifyPayload{
		InquiryID:  inquiry.ID.Hex(),
		TemplateID: templateID,
		Reply:      reply,
	})
	enqueue(ctx, h.taskClient, task, err)
}

// Create handles POST /inquiries. Signed-in submitters are linked to the inquiry
// and their account email is used.
func (h *InquiryHandler) Create(c *gin.Context) {
	var input services.InquiryInput
	if !bindJSON(c, &input) {
		return
	}
	if actor, ok := middleware.ActorFromContext(c); ok {
		userID := actor.UserID
		input.UserID = &userID
		input.Email = actor.Email
	}
	ctx := c.Request.Context()
	inquiry, err := h.inquiries.Create(ctx, input)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notify(ctx, inquiry, services.TemplateInquiryReceived, "")
	h.notify(ctx, inquiry, services.TemplateInquiryConfirmation, "")
	c.JSON(http.StatusCreated, inquiry)
}

// ListMine handles GET /me/inquiries.
func (h *InquiryHandler) ListMine(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	page, err := h.inquiries.ListByEmail(c.Request.Context(), actor.Email, pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ownInquiry loads an inquiry the actor submitted. Other users' inquiries are reported as not found.
func (h *InquiryHandler) ownInquiry(c *gin.Context) (*models.Inquiry, bool) {
	actor, ok := mustActor(c)
	if !ok {
		return nil, false
	}
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return nil, false
	}
	inquiry, err := h.inquiries.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if !inquiry.OwnedBy(actor.Email) {
		respondError(c, apperrors.NotFound("inquiry"))
		return nil, false
	}
	return inquiry, true
}

// GetMine handles GET /me/inquiries/:id.
func (h *InquiryHandler) GetMine(c *gin.Context) {
	inquiry, ok := h.ownInquiry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, inquiry)
}

type replyRequest struct {
	Message string `json:"message"`
}

// ReplyMine handles POST /me/inquiries/:id/replies.
func (h *InquiryHandler) ReplyMine(c *gin.Context) {
	inquiry, ok := h.ownInquiry(c)
	if !ok {
		return
	}
	var req replyRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.inquiries.AppendReply(c.Request.Context(), inquiry.ID, req.Message, false)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, updated)
}

// AdminList handles GET /admin/inquiries.
func (h *InquiryHandler) AdminList(c *gin.Context) {
	filter := services.InquiryFilter{
		Status: models.InquiryStatus(c.Query("status")),
		Type:   models.InquiryType(c.Query("type")),
		IsRead: queryBool(c, "isRead"),
		Query:  c.Query("q"),
	}
	page, err := h.inquiries.ListForAdmin(c.Request.Context(), filter, pageRequest(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// AdminGet handles GET /admin/inquiries/:id; opening an inquiry marks it read.
func (h *InquiryHandler) AdminGet(c *gin.Context) {
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := h.inquiries.MarkRead(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	inquiry, err := h.inquiries.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inquiry)
}

// ChangeStatus handles PATCH /admin/inquiries/:id/status.
func (h *InquiryHandler) ChangeStatus(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	var req struct {
		Status models.InquiryStatus `json:"status"`
	}
	if !bindJSON(c, &req) {
		return
	}
	inquiry, err := h.inquiries.ChangeStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inquiry)
}

// MarkUnread handles PATCH /admin/inquiries/:id/unread.
func (h *InquiryHandler) MarkUnread(c *gin.Context) {
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	if err := h.inquiries.MarkUnread(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Inquiry marked as unread"})
}

// AdminReply handles POST /admin/inquiries/:id/replies and emails the reply to the submitter.
func (h *InquiryHandler) AdminReply(c *gin.Context) {
	id, ok := pathID(c, "id", "inquiry")
	if !ok {
		return
	}
	var req replyRequest
	if !bindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()
	inquiry, err := h.inquiries.AppendReply(ctx, id, req.Message, true)
	if err != nil {
		respondError(c, err)
		return
	}
	h.notify(ctx, inquiry, services.TemplateInquiryReply, strings.TrimSpace(req.Message))
	c.JSON(http.StatusCreated, inquiry)
}
