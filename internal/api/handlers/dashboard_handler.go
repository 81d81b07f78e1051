package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"egharbari/api/internal/services"
)

// DashboardHandler serves the admin overview.
type DashboardHandler struct {
	dashboard services.IDashboardService
}

func NewDashboardHandler(dashboard services.IDashboardService) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard}
}

// Stats handles GET /admin/dashboard.
func (h *DashboardHandler) Stats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
