package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"egharbari/api/internal/api/middleware"
	"egharbari/api/internal/apperrors"
	"egharbari/api/internal/models"
	"egharbari/api/internal/services"
	"egharbari/api/internal/utils"
)

// IAsynqClient defines the interface for the Asynq client methods used by the handlers.
// This allows easier mocking than using the concrete asynq.Client.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// respondError writes err as {"error", "code"} with the status of its kind.
// Unexpected errors are logged and their details withheld.
func respondError(c *gin.Context, err error) {
	status := apperrors.StatusCode(err)
	if status == http.StatusInternalServerError {
		utils.Logger.WithError(err).Errorf("%s %s failed", c.Request.Method, c.FullPath())
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{
		"error": apperrors.PublicMessage(err),
		"code":  apperrors.KindOf(err),
	})
}

// bindJSON decodes the request body, responding 400 on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperrors.Validation("invalid request body: %v", err))
		return false
	}
	return true
}

// pathID parses an ObjectID path parameter, responding 404 when it is malformed.
func pathID(c *gin.Context, param, resource string) (primitive.ObjectID, bool) {
	id, err := services.ParseObjectID(resource, c.Param(param))
	if err != nil {
		respondError(c, err)
		return primitive.NilObjectID, false
	}
	return id, true
}

// pageRequest reads ?page= and ?limit=.
func pageRequest(c *gin.Context) models.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return models.NewPageRequest(page, limit)
}

// queryBool parses an optional boolean query parameter.
func queryBool(c *gin.Context, key string) *bool {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func queryFloat(c *gin.Context, key string) *float64 {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string) *int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

// mustActor returns the authenticated actor; routes using it sit behind AuthMiddleware.
func mustActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		respondError(c, apperrors.Unauthenticated("authentication required"))
	}
	return actor, ok
}

// enqueue schedules a background task. Failures are logged; the request still succeeds.
func enqueue(ctx context.Context, client IAsynqClient, task *asynq.Task, err error) {
	if err != nil {
		utils.Logger.WithError(err).Error("Failed to build background task")
		return
	}
	if task == nil || client == nil {
		return
	}
	info, err := client.EnqueueContext(ctx, task)
	if err != nil {
		utils.Logger.WithError(err).Errorf("Failed to enqueue %s task", task.Type())
		return
	}
	utils.Logger.Debugf("Enqueued %s task %s", task.Type(), info.ID)
}

// clientKey identifies a visitor for view de-duplication.
func clientKey(c *gin.Context) string {
	if actor, ok := middleware.ActorFromContext(c); ok {
		return "user:" + actor.UserID.Hex()
	}
	return "ip:" + c.ClientIP()
}
