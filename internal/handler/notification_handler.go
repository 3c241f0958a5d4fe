package handler

import (
	"net/http"

	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/internal/notifier"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationHandler struct {
	push   notifier.Client
	logger *zap.Logger
}

func NewNotificationHandler(push notifier.Client, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{push: push, logger: logger}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/notifications")
	group.Use(middleware.RequireRole(model.RoleBeneficiary, model.RoleEmployee, model.RoleAdmin))
	{
		group.POST("/:kind", h.Forward)
	}
}

type notificationBody struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

// Kinds addressed to a single beneficiary device need a target token;
// staff-facing kinds fan out downstream and carry none.
var tokenRequired = map[notifier.Kind]bool{
	notifier.KindDateProposal:        true,
	notifier.KindPickupReminder:      true,
	notifier.KindRequestAccepted:     true,
	notifier.KindApplicationAccepted: true,
	notifier.KindApplicationRejected: true,
	notifier.KindRequestRejected:     true,
}

// Forward relays a notification to the push service
// @Summary      Forward a push notification
// @Description  Validates the payload for the named notification kind and forwards it to the push service. Rendering and delivery happen downstream.
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        kind     path      string            true  "Notification kind"
// @Param        payload  body      notificationBody  true  "Notification content"
// @Success      200      {object}  object
// @Failure      400      {object}  object
// @Router       /api/notifications/{kind} [post]
func (h *NotificationHandler) Forward(c *gin.Context) {
	kind := c.Param("kind")
	if !notifier.ValidKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown notification kind"})
		return
	}

	var body notificationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload: " + err.Error()})
		return
	}

	if body.Title == "" || body.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "title and body are required"})
		return
	}
	if tokenRequired[notifier.Kind(kind)] && body.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "token is required for this kind"})
		return
	}

	err := h.push.Send(c.Request.Context(), notifier.Notification{
		Kind:  notifier.Kind(kind),
		Token: body.Token,
		Title: body.Title,
		Body:  body.Body,
		Data:  body.Data,
	})
	if err != nil {
		h.logger.Warn("notification forward failed", zap.String("kind", kind), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "push service failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
