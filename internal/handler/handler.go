package handler

import (
	"errors"
	"net/http"

	"foodshare-backend/internal/service"
	"foodshare-backend/pkg/apperr"
	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError translates service errors into the response envelope. The
// mapping is the single place HTTP status codes are decided for domain
// failures.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "resource not found"))
	case errors.Is(err, apperr.ErrInvalidStateTransition):
		c.JSON(http.StatusConflict, response.Error(http.StatusConflict, err.Error()))
	case errors.Is(err, apperr.ErrNoStockAvailable),
		errors.Is(err, apperr.ErrInsufficientStock):
		c.JSON(http.StatusUnprocessableEntity, response.Error(http.StatusUnprocessableEntity, err.Error()))
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "access denied"))
	case errors.Is(err, service.ErrUnknownAuditAction),
		errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
	case apperr.IsUpstream(err):
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, "upstream service failed"))
	default:
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, err.Error()))
	}
}
