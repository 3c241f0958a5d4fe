package handler

import (
	"net/http"

	"foodshare-backend/internal/barcode"
	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type BarcodeHandler struct {
	lookup barcode.Client
}

func NewBarcodeHandler(lookup barcode.Client) *BarcodeHandler {
	return &BarcodeHandler{lookup: lookup}
}

func (h *BarcodeHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/barcode")
	group.Use(
		middleware.RequireRole(model.RoleEmployee, model.RoleAdmin),
		// The upstream catalog provider enforces its own quota; stay under it
		middleware.RateLimit(rate.Limit(1000.0/900.0), 50),
	)
	{
		group.GET("", h.Lookup)
	}
}

// Lookup resolves a product barcode against the external catalog provider
// @Summary      Barcode lookup
// @Description  Proxied, cached lookup of product metadata by barcode. Responses are cached for 10 minutes.
// @Tags         barcode
// @Produce      json
// @Security     BearerAuth
// @Param        barcode  query     string  true  "Product barcode"
// @Success      200      {object}  object
// @Failure      404      {object}  response.Response
// @Failure      502      {object}  response.Response
// @Router       /api/barcode [get]
func (h *BarcodeHandler) Lookup(c *gin.Context) {
	code := c.Query("barcode")
	if code == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "barcode query parameter is required"))
		return
	}

	result, err := h.lookup.Lookup(c.Request.Context(), code)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", result)
}
