package handler

import (
	"net/http"
	"time"

	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/internal/service"
	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/audit")
	group.Use(middleware.RequireRole(model.RoleEmployee, model.RoleAdmin))
	{
		group.POST("/log", h.RecordLog)
		group.GET("/logs", h.GetLogs)
		group.GET("/campaigns/:id/products", h.CampaignProducts)
	}
}

type recordLogRequest struct {
	Action  string                 `json:"action" binding:"required"`
	Details map[string]interface{} `json:"details"`
}

// RecordLog appends one audit entry for the acting user
// @Summary      Record an audit entry
// @Description  Appends an entry with the given action and free-form details. The action must belong to the fixed action set.
// @Tags         audit
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      recordLogRequest  true  "Audit entry"
// @Success      201      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /api/audit/log [post]
func (h *AuditHandler) RecordLog(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	var req recordLogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.auditService.Record(c.Request.Context(), &actorID, req.Action, req.Details); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, gin.H{"recorded": true}))
}

// GetLogs retrieves audit entries within an optional date range
// @Summary      Get audit logs
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        startDate  query     string  false  "Lower bound, RFC 3339"
// @Param        endDate    query     string  false  "Upper bound, RFC 3339"
// @Success      200        {object}  response.Response{data=[]service.AuditLogResponse}
// @Failure      400        {object}  response.Response
// @Router       /api/audit/logs [get]
func (h *AuditHandler) GetLogs(c *gin.Context) {
	start, err := parseDateQuery(c.Query("startDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid startDate: expected RFC 3339"))
		return
	}
	end, err := parseDateQuery(c.Query("endDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid endDate: expected RFC 3339"))
		return
	}

	logs, err := h.auditService.List(c.Request.Context(), start, end)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, logs))
}

// CampaignProducts reports the products taken in under a campaign
// @Summary      Campaign intake report
// @Description  Joins the campaign's add_item audit entries with catalog metadata.
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Campaign ID"
// @Success      200  {object}  response.Response{data=[]service.CampaignProductResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/audit/campaigns/{id}/products [get]
func (h *AuditHandler) CampaignProducts(c *gin.Context) {
	campaignID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid campaign ID"))
		return
	}

	products, err := h.auditService.CampaignProducts(c.Request.Context(), campaignID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, products))
}

func parseDateQuery(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Date-only bounds are accepted for convenience
		t, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, err
		}
	}
	return &t, nil
}
