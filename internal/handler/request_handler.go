package handler

import (
	"errors"
	"net/http"
	"time"

	"foodshare-backend/internal/middleware"
	"foodshare-backend/internal/model"
	"foodshare-backend/internal/service"
	"foodshare-backend/pkg/pagination"
	"foodshare-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type RequestHandler struct {
	requestService service.RequestService
}

func NewRequestHandler(requestService service.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	{
		requests.POST("", middleware.RequireRole(model.RoleBeneficiary), h.Submit)
		requests.GET("", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.List)
		requests.GET("/mine", middleware.RequireRole(model.RoleBeneficiary), h.ListMine)
		requests.GET("/pending-count", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.PendingCount)
		requests.GET("/:id", middleware.RequireRole(model.RoleBeneficiary, model.RoleEmployee, model.RoleAdmin), h.Get)
		requests.PUT("/:id/accept", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.Accept)
		requests.PUT("/:id/reject", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.Reject)
		requests.PUT("/:id/propose-pickup-date", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.ProposePickupDate)
		requests.PUT("/:id/propose-delivery-date", middleware.RequireRole(model.RoleBeneficiary), h.ProposeDeliveryDate)
		requests.PUT("/:id/accept-date", middleware.RequireRole(model.RoleBeneficiary), h.AcceptProposedDate)
		requests.PUT("/:id/complete", middleware.RequireRole(model.RoleEmployee, model.RoleAdmin), h.Complete)
		requests.PUT("/:id/cancel", middleware.RequireRole(model.RoleBeneficiary, model.RoleEmployee, model.RoleAdmin), h.Cancel)
	}
}

type dateBody struct {
	Date time.Time `json:"date" binding:"required"`
}

type rejectBody struct {
	Reason string `json:"reason" binding:"required"`
}

type cancelBody struct {
	BeneficiaryAbsent bool `json:"beneficiary_absent"`
}

// Submit creates a pickup request, reserving stock for the selection
// @Summary      Submit a pickup request
// @Description  Allocates available stock against the selection and creates the request. Partial allocation is allowed; fails only when nothing can be allocated.
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.SubmitRequestInput  true  "Requested items"
// @Success      201      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}

	var req service.SubmitRequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.Submit(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// List returns all requests newest-first with cursor pagination
// @Summary      List pickup requests
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int     false  "Page size"
// @Param        cursor  query     string  false  "Continuation token from a previous page"
// @Success      200     {object}  response.Response{data=[]service.RequestResponse}
// @Failure      400     {object}  response.Response
// @Router       /api/requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	limit := pagination.ParseLimit(c)

	results, nextCursor, hasMore, err := h.requestService.ListPaginated(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		h.writeListError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Page(http.StatusOK, results, nextCursor, hasMore))
}

// ListMine returns the authenticated beneficiary's own requests
// @Summary      List own pickup requests
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int     false  "Page size"
// @Param        cursor  query     string  false  "Continuation token from a previous page"
// @Success      200     {object}  response.Response{data=[]service.RequestResponse}
// @Router       /api/requests/mine [get]
func (h *RequestHandler) ListMine(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}
	limit := pagination.ParseLimit(c)

	results, nextCursor, hasMore, err := h.requestService.ListByUser(c.Request.Context(), userID, limit, c.Query("cursor"))
	if err != nil {
		h.writeListError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Page(http.StatusOK, results, nextCursor, hasMore))
}

// PendingCount returns the number of requests awaiting review
// @Summary      Count pending requests
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Router       /api/requests/pending-count [get]
func (h *RequestHandler) PendingCount(c *gin.Context) {
	count, err := h.requestService.PendingCount(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"pending": count}))
}

// Get returns one request with its allocated items
// @Summary      Get a pickup request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request ID"))
		return
	}

	result, err := h.requestService.Get(c.Request.Context(), requestID)
	if err != nil {
		writeError(c, err)
		return
	}

	// Beneficiaries only see their own requests
	if middleware.CurrentUserRole(c) == model.RoleBeneficiary {
		if userID, ok := middleware.CurrentUserID(c); !ok || result.UserID != userID.String() {
			c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "access denied"))
			return
		}
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Accept moves a submitted request to accepted with a pickup date
// @Summary      Accept a pickup request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string    true  "Request ID"
// @Param        payload  body      dateBody  true  "Scheduled pickup date"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/accept [put]
func (h *RequestHandler) Accept(c *gin.Context) {
	h.transition(c, func(actorID, requestID uuid.UUID) (service.RequestResponse, error) {
		var body dateBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return service.RequestResponse{}, errBadPayload(err)
		}
		return h.requestService.Accept(c.Request.Context(), actorID, requestID, body.Date)
	})
}

// Reject declines a submitted request and returns its stock
// @Summary      Reject a pickup request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string      true  "Request ID"
// @Param        payload  body      rejectBody  true  "Rejection reason"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/reject [put]
func (h *RequestHandler) Reject(c *gin.Context) {
	h.transition(c, func(actorID, requestID uuid.UUID) (service.RequestResponse, error) {
		var body rejectBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return service.RequestResponse{}, errBadPayload(err)
		}
		return h.requestService.Reject(c.Request.Context(), actorID, requestID, body.Reason)
	})
}

// ProposePickupDate records a staff-proposed pickup date on a submitted request
// @Summary      Propose a pickup date
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string    true  "Request ID"
// @Param        payload  body      dateBody  true  "Proposed pickup date"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/propose-pickup-date [put]
func (h *RequestHandler) ProposePickupDate(c *gin.Context) {
	h.transition(c, func(actorID, requestID uuid.UUID) (service.RequestResponse, error) {
		var body dateBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return service.RequestResponse{}, errBadPayload(err)
		}
		return h.requestService.ProposePickupDate(c.Request.Context(), actorID, requestID, body.Date)
	})
}

// ProposeDeliveryDate records a beneficiary counter-proposal
// @Summary      Propose a delivery date
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string    true  "Request ID"
// @Param        payload  body      dateBody  true  "Proposed delivery date"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/propose-delivery-date [put]
func (h *RequestHandler) ProposeDeliveryDate(c *gin.Context) {
	h.transition(c, func(actorID, requestID uuid.UUID) (service.RequestResponse, error) {
		var body dateBody
		if err := c.ShouldBindJSON(&body); err != nil {
			return service.RequestResponse{}, errBadPayload(err)
		}
		return h.requestService.ProposeDeliveryDate(c.Request.Context(), actorID, requestID, body.Date)
	})
}

// AcceptProposedDate accepts the standing pickup date proposal
// @Summary      Accept the proposed pickup date
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/accept-date [put]
func (h *RequestHandler) AcceptProposedDate(c *gin.Context) {
	h.transition(c, func(actorID, requestID uuid.UUID) (service.RequestResponse, error) {
		return h.requestService.AcceptProposedDate(c.Request.Context(), actorID, requestID)
	})
}

// Complete marks an accepted request as picked up, consuming its stock
// @Summary      Complete a pickup request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/complete [put]
func (h *RequestHandler) Complete(c *gin.Context) {
	h.transition(c, func(actorID, requestID uuid.UUID) (service.RequestResponse, error) {
		return h.requestService.Complete(c.Request.Context(), actorID, requestID)
	})
}

// Cancel cancels an accepted request and returns its stock
// @Summary      Cancel a pickup request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string      true   "Request ID"
// @Param        payload  body      cancelBody  false  "Cancellation details"
// @Success      200      {object}  response.Response{data=service.RequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/requests/{id}/cancel [put]
func (h *RequestHandler) Cancel(c *gin.Context) {
	h.transition(c, func(actorID, requestID uuid.UUID) (service.RequestResponse, error) {
		var body cancelBody
		if err := c.ShouldBindJSON(&body); err != nil {
			// Empty body means a plain cancellation
			body.BeneficiaryAbsent = false
		}
		return h.requestService.Cancel(c.Request.Context(), actorID, middleware.CurrentUserRole(c), requestID, body.BeneficiaryAbsent)
	})
}

// transition factors the shared shape of the state-changing endpoints:
// parse IDs, run the operation, map the error, return the updated request.
func (h *RequestHandler) transition(c *gin.Context, op func(actorID, requestID uuid.UUID) (service.RequestResponse, error)) {
	actorID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid user identity"))
		return
	}
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request ID"))
		return
	}

	result, err := op(actorID, requestID)
	if err != nil {
		if bad, ok := err.(badPayloadError); ok {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+bad.Error()))
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

func (h *RequestHandler) writeListError(c *gin.Context, err error) {
	// Malformed cursors are a client mistake, not a server fault
	if errors.Is(err, pagination.ErrMalformedCursor) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, err.Error()))
		return
	}
	writeError(c, err)
}

type badPayloadError struct{ err error }

func (e badPayloadError) Error() string { return e.err.Error() }

func errBadPayload(err error) error { return badPayloadError{err: err} }
