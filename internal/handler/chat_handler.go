package handler

import (
	"net/http"

	"foodshare-backend/internal/assistant"
	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	assistant assistant.Client
}

func NewChatHandler(client assistant.Client) *ChatHandler {
	return &ChatHandler{assistant: client}
}

func (h *ChatHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/chat")
	group.Use(middleware.RequireRole(model.RoleBeneficiary, model.RoleEmployee, model.RoleAdmin))
	{
		group.POST("", h.Complete)
	}
}

type chatRequest struct {
	Messages []assistant.Message `json:"messages" binding:"required,min=1,dive"`
}

// Complete forwards a conversation to the chat-completion provider
// @Summary      Chat completion
// @Description  Forwards the conversation with the configured system prompt prepended and returns the assistant's reply.
// @Tags         chat
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      chatRequest  true  "Conversation so far"
// @Success      200      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/chat [post]
func (h *ChatHandler) Complete(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	reply, err := h.assistant.Complete(c.Request.Context(), req.Messages)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"reply": reply}))
}
