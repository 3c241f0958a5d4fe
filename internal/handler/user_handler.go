package handler

import (
	"errors"
	"net/http"

	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/internal/service"
	"foodshare-backend/pkg/apperr"
	"foodshare-backend/pkg/pagination"
	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
}

func NewUserHandler(userService service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/register", h.Register)
	router.POST("/login", h.Login)

	users := router.Group("/api/users")
	{
		users.GET("/me", middleware.RequireRole(model.RoleBeneficiary, model.RoleEmployee, model.RoleAdmin), h.GetMe)
		users.PUT("/me/fcm-token", middleware.RequireRole(model.RoleBeneficiary, model.RoleEmployee, model.RoleAdmin), h.UpdateFCMToken)
		users.GET("", middleware.RequireRole(model.RoleAdmin), h.ListUsers)
	}
}

// Register creates a new account and returns a JWT token
// @Summary      Register user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RegisterRequest  true  "Registration details"
// @Success      201      {object}  response.Response{data=service.AuthResponse}
// @Failure      400      {object}  response.Response
// @Router       /register [post]
func (h *UserHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	auth, err := h.userService.Register(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, auth))
}

// Login authenticates a user by email and password, returning a JWT token
// @Summary      Login user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest  true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.AuthResponse}
// @Failure      401      {object}  response.Response
// @Router       /login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload"))
		return
	}

	auth, err := h.userService.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid email or password"))
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, auth))
}

// GetMe returns the currently authenticated user
// @Summary      Get current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/me [get]
func (h *UserHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	user, err := h.userService.GetMe(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, user))
}

type fcmTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UpdateFCMToken stores the caller's device token for push notifications
// @Summary      Update device token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      fcmTokenRequest  true  "Device token"
// @Success      200      {object}  response.Response
// @Router       /api/users/me/fcm-token [put]
func (h *UserHandler) UpdateFCMToken(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	var req fcmTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	if err := h.userService.UpdateFCMToken(c.Request.Context(), userID, req.Token); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"updated": true}))
}

// ListUsers returns registered users
// @Summary      List users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number"
// @Param        limit  query     int  false  "Page size"
// @Success      200    {object}  response.Response{data=[]service.UserResponse}
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	params := pagination.Parse(c)

	users, total, err := h.userService.ListUsers(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   users,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}
