package handler

import (
	"net/http"

	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/internal/service"
	"foodshare-backend/pkg/pagination"
	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalogService service.CatalogService
}

func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	items := router.Group("/api/items")
	{
		items.GET("/requestable", middleware.RequireRole(model.RoleBeneficiary, model.RoleEmployee, model.RoleAdmin), h.ListRequestable)
	}

	products := router.Group("/api/products")
	{
		products.GET("", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.GetProducts)
		products.POST("/stock", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.AddStock)
	}

	campaigns := router.Group("/api/campaigns")
	{
		campaigns.POST("", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.CreateCampaign)
		campaigns.GET("", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.ListCampaigns)
	}
}

// ListRequestable returns products with available stock, aggregated per product
// @Summary      List requestable items
// @Description  One row per product with available stock across its batches, expiry-aware. Cursor-paginated; a product never splits across pages.
// @Tags         items
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int     false  "Page size"
// @Param        cursor  query     string  false  "Continuation token from a previous page"
// @Success      200     {object}  response.Response{data=[]service.RequestableItem}
// @Failure      400     {object}  response.Response
// @Router       /api/items/requestable [get]
func (h *CatalogHandler) ListRequestable(c *gin.Context) {
	limit := pagination.ParseLimit(c)

	items, nextCursor, hasMore, err := h.catalogService.ListRequestableItems(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		if _, decodeErr := pagination.Decode(c.Query("cursor")); decodeErr != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, decodeErr.Error()))
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Page(http.StatusOK, items, nextCursor, hasMore))
}

// GetProducts returns the product catalog with optional name search
// @Summary      Get products
// @Tags         products
// @Produce      json
// @Security     BearerAuth
// @Param        page    query     int     false  "Page number"
// @Param        limit   query     int     false  "Page size"
// @Param        search  query     string  false  "Name filter"
// @Success      200     {object}  response.Response{data=[]model.Product}
// @Router       /api/products [get]
func (h *CatalogHandler) GetProducts(c *gin.Context) {
	params := pagination.Parse(c)

	products, total, err := h.catalogService.GetProducts(c.Request.Context(), params.Page, params.Limit, c.Query("search"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   products,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// AddStock registers a donation intake as a new stock batch
// @Summary      Add stock
// @Description  Upserts the product and creates a batch for the received quantity. Tags the intake with a campaign for reporting when given.
// @Tags         products
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.AddStockRequest  true  "Intake details"
// @Success      201      {object}  response.Response{data=service.BatchResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/products/stock [post]
func (h *CatalogHandler) AddStock(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	var req service.AddStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	batch, err := h.catalogService.AddStock(c.Request.Context(), actorID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, batch))
}

// CreateCampaign creates a donation campaign
// @Summary      Create a campaign
// @Tags         campaigns
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateCampaignRequest  true  "Campaign details"
// @Success      201      {object}  response.Response{data=model.Campaign}
// @Failure      400      {object}  response.Response
// @Router       /api/campaigns [post]
func (h *CatalogHandler) CreateCampaign(c *gin.Context) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	var req service.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	campaign, err := h.catalogService.CreateCampaign(c.Request.Context(), actorID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, campaign))
}

// ListCampaigns returns all campaigns
// @Summary      List campaigns
// @Tags         campaigns
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]model.Campaign}
// @Router       /api/campaigns [get]
func (h *CatalogHandler) ListCampaigns(c *gin.Context) {
	campaigns, err := h.catalogService.ListCampaigns(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, campaigns))
}
