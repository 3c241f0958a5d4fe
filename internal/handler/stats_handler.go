package handler

import (
	"net/http"

	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/internal/service"
	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatsHandler struct {
	statsService service.StatsService
}

func NewStatsHandler(statsService service.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

func (h *StatsHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/statistics")
	group.Use(middleware.RequireRole(model.RoleEmployee, model.RoleAdmin))
	{
		group.GET("/distribution", h.Distribution)
	}
}

// Distribution summarizes completed pickups and their estimated value
// @Summary      Distribution statistics
// @Tags         statistics
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.DistributionStats}
// @Router       /api/statistics/distribution [get]
func (h *StatsHandler) Distribution(c *gin.Context) {
	stats, err := h.statsService.Distribution(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
