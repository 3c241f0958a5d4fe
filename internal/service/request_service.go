package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"foodshare-backend/internal/model"
	"foodshare-backend/internal/notifier"
	"foodshare-backend/internal/repository"
	ws "foodshare-backend/internal/websocket"
	"foodshare-backend/pkg/apperr"
	"foodshare-backend/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DTOs

type RequestSelection struct {
	Barcode  string `json:"barcode" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,gt=0"`
}

type SubmitRequestInput struct {
	Selections           []RequestSelection `json:"selections" binding:"required,min=1,dive"`
	ProposedDeliveryDate *time.Time         `json:"proposed_delivery_date"`
	// IdempotencyKey lets the client retry a submission without
	// double-allocating stock. Optional but recommended.
	IdempotencyKey string `json:"idempotency_key"`
}

type RequestItemResponse struct {
	BatchID           string `json:"batch_id"`
	Barcode           string `json:"barcode"`
	Quantity          int    `json:"quantity"`
	RequestedQuantity int    `json:"requested_quantity"`
}

type RequestResponse struct {
	ID                   string                `json:"id"`
	UserID               string                `json:"user_id"`
	UserName             string                `json:"user_name,omitempty"`
	Status               int                   `json:"status"`
	StatusLabel          string                `json:"status_label"`
	SubmissionDate       string                `json:"submission_date"`
	TotalItems           int                   `json:"total_items"`
	ScheduledPickupDate  *time.Time            `json:"scheduled_pickup_date,omitempty"`
	ProposedDeliveryDate *time.Time            `json:"proposed_delivery_date,omitempty"`
	RejectionReason      string                `json:"rejection_reason,omitempty"`
	Items                []RequestItemResponse `json:"items"`
}

// RequestService drives the pickup-request state machine. Every operation
// takes the acting user explicitly; there is no ambient auth state. Stock
// effects and the status write happen in one database transaction; audit
// entries, push notifications and websocket events are emitted after commit
// and are strictly best-effort.
type RequestService interface {
	Submit(ctx context.Context, userID uuid.UUID, in SubmitRequestInput) (RequestResponse, error)
	Get(ctx context.Context, requestID uuid.UUID) (RequestResponse, error)
	Accept(ctx context.Context, actorID, requestID uuid.UUID, pickupDate time.Time) (RequestResponse, error)
	Reject(ctx context.Context, actorID, requestID uuid.UUID, reason string) (RequestResponse, error)
	// ProposePickupDate is the employee side of date negotiation: the
	// request stays SUBMITTED with a standing pickup date.
	ProposePickupDate(ctx context.Context, actorID, requestID uuid.UUID, date time.Time) (RequestResponse, error)
	// ProposeDeliveryDate is the beneficiary counter-proposal; it clears
	// the standing pickup date to restart negotiation.
	ProposeDeliveryDate(ctx context.Context, userID, requestID uuid.UUID, date time.Time) (RequestResponse, error)
	// AcceptProposedDate lets the beneficiary accept the standing pickup
	// date, moving the request to ACCEPTED_PENDING_PICKUP.
	AcceptProposedDate(ctx context.Context, userID, requestID uuid.UUID) (RequestResponse, error)
	Complete(ctx context.Context, actorID, requestID uuid.UUID) (RequestResponse, error)
	// Cancel is allowed to staff for any request and to a beneficiary for
	// their own; actorRole is the caller's authenticated role.
	Cancel(ctx context.Context, actorID uuid.UUID, actorRole string, requestID uuid.UUID, beneficiaryAbsent bool) (RequestResponse, error)
	ListPaginated(ctx context.Context, limit int, cursorToken string) ([]RequestResponse, string, bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursorToken string) ([]RequestResponse, string, bool, error)
	PendingCount(ctx context.Context) (int64, error)
}

type requestService struct {
	requestRepo repository.RequestRepository
	stockRepo   repository.StockRepository
	userRepo    repository.UserRepository
	txManager   repository.TransactionManager
	audit       AuditService
	push        notifier.Client
	hub         *ws.Hub
	logger      *zap.Logger
}

func NewRequestService(
	requestRepo repository.RequestRepository,
	stockRepo repository.StockRepository,
	userRepo repository.UserRepository,
	txManager repository.TransactionManager,
	audit AuditService,
	push notifier.Client,
	hub *ws.Hub,
	logger *zap.Logger,
) RequestService {
	return &requestService{
		requestRepo: requestRepo,
		stockRepo:   stockRepo,
		userRepo:    userRepo,
		txManager:   txManager,
		audit:       audit,
		push:        push,
		hub:         hub,
		logger:      logger,
	}
}

func (s *requestService) Submit(ctx context.Context, userID uuid.UUID, in SubmitRequestInput) (RequestResponse, error) {
	if in.IdempotencyKey != "" {
		if existing, err := s.requestRepo.FindByIdempotencyKey(ctx, in.IdempotencyKey); err == nil {
			return toRequestResponse(existing), nil
		}
	}

	request := &model.Request{
		UserID:               userID,
		Status:               model.StatusSubmitted,
		ProposedDeliveryDate: in.ProposedDeliveryDate,
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		request.IdempotencyKey = &key
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		totalAllocated := 0
		for _, sel := range in.Selections {
			allocated, err := s.allocateSelection(txCtx, request, sel)
			if err != nil {
				return err
			}
			totalAllocated += allocated
		}

		if totalAllocated == 0 {
			return apperr.ErrNoStockAvailable
		}
		request.TotalItems = totalAllocated

		return s.requestRepo.Create(txCtx, request)
	})
	if err != nil {
		// A concurrent retry with the same idempotency key may have won
		// the race; hand back the request it created.
		if in.IdempotencyKey != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			if existing, findErr := s.requestRepo.FindByIdempotencyKey(ctx, in.IdempotencyKey); findErr == nil {
				return toRequestResponse(existing), nil
			}
		}
		return RequestResponse{}, err
	}

	s.recordAudit(ctx, userID, model.ActionCreateRequest, map[string]interface{}{
		"request_id":  request.ID.String(),
		"total_items": request.TotalItems,
	})
	s.notifyStaff(ctx, notifier.KindNewRequest, "New pickup request",
		fmt.Sprintf("A request for %d items was submitted", request.TotalItems), request.ID)
	s.broadcast("request_submitted", request)

	return toRequestResponse(request), nil
}

// allocateSelection walks the product's batches in FEFO order and reserves
// from each until the selection is satisfied or batches run out. Partial
// allocation is allowed. The rows are locked for the transaction, and
// Reserve itself re-checks availability, so a batch concurrently drained by
// another transaction is simply skipped.
func (s *requestService) allocateSelection(txCtx context.Context, request *model.Request, sel RequestSelection) (int, error) {
	batches, err := s.stockRepo.FindAvailableByProductForUpdate(txCtx, sel.Barcode)
	if err != nil {
		return 0, err
	}

	allocated := 0
	remaining := sel.Quantity
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		take := batch.Available()
		if take > remaining {
			take = remaining
		}
		if take <= 0 {
			continue
		}

		if err := s.stockRepo.Reserve(txCtx, batch.ID, take); err != nil {
			if errors.Is(err, apperr.ErrInsufficientStock) {
				continue
			}
			return 0, err
		}

		request.Items = append(request.Items, model.RequestItem{
			BatchID:           batch.ID,
			Barcode:           sel.Barcode,
			Quantity:          take,
			RequestedQuantity: sel.Quantity,
		})
		allocated += take
		remaining -= take
	}
	return allocated, nil
}

func (s *requestService) Get(ctx context.Context, requestID uuid.UUID) (RequestResponse, error) {
	request, err := s.requestRepo.FindByID(ctx, requestID)
	if err != nil {
		return RequestResponse{}, err
	}
	return toRequestResponse(request), nil
}

func (s *requestService) Accept(ctx context.Context, actorID, requestID uuid.UUID, pickupDate time.Time) (RequestResponse, error) {
	request, err := s.transition(ctx, requestID, model.StatusAcceptedPendingPickup, func(txCtx context.Context, req *model.Request) error {
		req.ScheduledPickupDate = &pickupDate
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.recordAudit(ctx, actorID, model.ActionAcceptRequest, map[string]interface{}{
		"request_id":  request.ID.String(),
		"pickup_date": pickupDate.Format(time.RFC3339),
	})
	s.notifyBeneficiary(ctx, request, notifier.KindRequestAccepted, "Request accepted",
		"Your pickup request was accepted for "+pickupDate.Format("2006-01-02"))
	s.broadcast("request_accepted", request)

	return toRequestResponse(request), nil
}

func (s *requestService) Reject(ctx context.Context, actorID, requestID uuid.UUID, reason string) (RequestResponse, error) {
	request, err := s.transition(ctx, requestID, model.StatusRejected, func(txCtx context.Context, req *model.Request) error {
		// Rejection returns every reserved unit; nothing left the shelf.
		for _, item := range req.Items {
			if err := s.stockRepo.Release(txCtx, item.BatchID, item.Quantity); err != nil {
				return err
			}
		}
		req.RejectionReason = reason
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.recordAudit(ctx, actorID, model.ActionDeclineRequest, map[string]interface{}{
		"request_id": request.ID.String(),
		"reason":     reason,
	})
	s.notifyBeneficiary(ctx, request, notifier.KindRequestRejected, "Request rejected", reason)
	s.broadcast("request_rejected", request)

	return toRequestResponse(request), nil
}

func (s *requestService) ProposePickupDate(ctx context.Context, actorID, requestID uuid.UUID, date time.Time) (RequestResponse, error) {
	request, err := s.mutateSubmitted(ctx, requestID, func(req *model.Request) error {
		req.ScheduledPickupDate = &date
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.recordAudit(ctx, actorID, model.ActionProposePickupDate, map[string]interface{}{
		"request_id":  request.ID.String(),
		"pickup_date": date.Format(time.RFC3339),
	})
	s.notifyBeneficiary(ctx, request, notifier.KindDateProposal, "Pickup date proposed",
		"A pickup on "+date.Format("2006-01-02")+" was proposed for your request")

	return toRequestResponse(request), nil
}

func (s *requestService) ProposeDeliveryDate(ctx context.Context, userID, requestID uuid.UUID, date time.Time) (RequestResponse, error) {
	request, err := s.mutateSubmitted(ctx, requestID, func(req *model.Request) error {
		// Only the owner may counter-propose, and the check must run before
		// the mutation so a denied call leaves no trace.
		if req.UserID != userID {
			return apperr.ErrUnauthorized
		}
		req.ProposedDeliveryDate = &date
		// Counter-proposing voids the standing pickup date.
		req.ScheduledPickupDate = nil
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.recordAudit(ctx, userID, model.ActionProposeDeliveryDate, map[string]interface{}{
		"request_id":    request.ID.String(),
		"delivery_date": date.Format(time.RFC3339),
	})
	s.notifyStaff(ctx, notifier.KindBeneficiaryDateProposal, "Beneficiary proposed a date",
		"A beneficiary proposed "+date.Format("2006-01-02")+" for their pickup", request.ID)

	return toRequestResponse(request), nil
}

func (s *requestService) AcceptProposedDate(ctx context.Context, userID, requestID uuid.UUID) (RequestResponse, error) {
	request, err := s.transition(ctx, requestID, model.StatusAcceptedPendingPickup, func(txCtx context.Context, req *model.Request) error {
		if req.UserID != userID {
			return apperr.ErrUnauthorized
		}
		if req.ScheduledPickupDate == nil {
			return apperr.ErrInvalidStateTransition
		}
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.recordAudit(ctx, userID, model.ActionAcceptProposedDate, map[string]interface{}{
		"request_id": request.ID.String(),
	})
	s.notifyStaff(ctx, notifier.KindDateProposal, "Pickup date confirmed",
		"A beneficiary accepted the proposed pickup date", request.ID)
	s.broadcast("request_accepted", request)

	return toRequestResponse(request), nil
}

func (s *requestService) Complete(ctx context.Context, actorID, requestID uuid.UUID) (RequestResponse, error) {
	request, err := s.transition(ctx, requestID, model.StatusCompleted, func(txCtx context.Context, req *model.Request) error {
		// Pickup happened: units leave physical stock and the reservation
		// together.
		for _, item := range req.Items {
			if err := s.stockRepo.Consume(txCtx, item.BatchID, item.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.recordAudit(ctx, actorID, model.ActionCompleteRequest, map[string]interface{}{
		"request_id":  request.ID.String(),
		"total_items": request.TotalItems,
	})
	s.broadcast("request_completed", request)

	return toRequestResponse(request), nil
}

func (s *requestService) Cancel(ctx context.Context, actorID uuid.UUID, actorRole string, requestID uuid.UUID, beneficiaryAbsent bool) (RequestResponse, error) {
	request, err := s.transition(ctx, requestID, model.StatusCancelled, func(txCtx context.Context, req *model.Request) error {
		// Staff may cancel any request; a beneficiary only their own.
		if actorRole == model.RoleBeneficiary && req.UserID != actorID {
			return apperr.ErrUnauthorized
		}
		for _, item := range req.Items {
			if err := s.stockRepo.Release(txCtx, item.BatchID, item.Quantity); err != nil {
				return err
			}
		}
		if beneficiaryAbsent {
			if err := s.userRepo.IncrementAbsence(txCtx, req.UserID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RequestResponse{}, err
	}

	s.recordAudit(ctx, actorID, model.ActionCancelDelivery, map[string]interface{}{
		"request_id":         request.ID.String(),
		"beneficiary_absent": beneficiaryAbsent,
	})
	s.broadcast("request_cancelled", request)

	return toRequestResponse(request), nil
}

func (s *requestService) ListPaginated(ctx context.Context, limit int, cursorToken string) ([]RequestResponse, string, bool, error) {
	return s.list(ctx, nil, limit, cursorToken)
}

func (s *requestService) ListByUser(ctx context.Context, userID uuid.UUID, limit int, cursorToken string) ([]RequestResponse, string, bool, error) {
	return s.list(ctx, &userID, limit, cursorToken)
}

func (s *requestService) list(ctx context.Context, userID *uuid.UUID, limit int, cursorToken string) ([]RequestResponse, string, bool, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	cursor, err := pagination.Decode(cursorToken)
	if err != nil {
		return nil, "", false, err
	}
	var beforeID uuid.UUID
	if cursor.LastKey != "" {
		beforeID, err = uuid.Parse(cursor.LastKey)
		if err != nil {
			return nil, "", false, fmt.Errorf("%w: %v", pagination.ErrMalformedCursor, err)
		}
	}

	var requests []model.Request
	if userID != nil {
		requests, err = s.requestRepo.ListByUser(ctx, *userID, cursor.Before, beforeID, limit+1)
	} else {
		requests, err = s.requestRepo.ListBySubmissionDesc(ctx, cursor.Before, beforeID, limit+1)
	}
	if err != nil {
		return nil, "", false, err
	}

	requests, hasMore := pagination.CutPage(requests, limit)
	res := make([]RequestResponse, 0, len(requests))
	for i := range requests {
		res = append(res, toRequestResponse(&requests[i]))
	}

	nextCursor := ""
	if hasMore {
		// The id rides along in the cursor so that requests sharing the
		// boundary submission timestamp are not skipped on the next page.
		last := requests[len(requests)-1]
		nextCursor = pagination.BeforeTimeKey(last.SubmissionDate, last.ID.String()).Encode()
	}
	return res, nextCursor, hasMore, nil
}

func (s *requestService) PendingCount(ctx context.Context) (int64, error) {
	return s.requestRepo.CountByStatus(ctx, model.StatusSubmitted)
}

// transition locks the request, verifies the state machine permits moving
// to target, applies fn's side effects, then persists the new status. Any
// failure rolls back the whole step.
func (s *requestService) transition(ctx context.Context, requestID uuid.UUID, target model.RequestStatus, fn func(txCtx context.Context, req *model.Request) error) (*model.Request, error) {
	var request *model.Request
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.FindByIDForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}
		if !model.CanTransition(req.Status, target) {
			return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidStateTransition, req.Status, target)
		}
		if err := fn(txCtx, req); err != nil {
			return err
		}
		req.Status = target
		if err := s.requestRepo.Save(txCtx, req); err != nil {
			return err
		}
		request = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// mutateSubmitted applies a negotiation edit that leaves the request in
// SUBMITTED. Terminal or accepted requests cannot be renegotiated. fn runs
// inside the transaction, so an error from it discards the edit entirely.
func (s *requestService) mutateSubmitted(ctx context.Context, requestID uuid.UUID, fn func(req *model.Request) error) (*model.Request, error) {
	var request *model.Request
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.FindByIDForUpdate(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.Status != model.StatusSubmitted {
			return fmt.Errorf("%w: %s is not negotiable", apperr.ErrInvalidStateTransition, req.Status)
		}
		if err := fn(req); err != nil {
			return err
		}
		if err := s.requestRepo.Save(txCtx, req); err != nil {
			return err
		}
		request = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Post-commit effects. None of these may fail the operation they follow.

func (s *requestService) recordAudit(ctx context.Context, actorID uuid.UUID, action string, details map[string]interface{}) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, &actorID, action, details); err != nil {
		s.logger.Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *requestService) notifyBeneficiary(ctx context.Context, request *model.Request, kind notifier.Kind, title, body string) {
	if s.push == nil {
		return
	}
	user, err := s.userRepo.FindByID(ctx, request.UserID)
	if err != nil || user.FCMToken == "" {
		return
	}
	err = s.push.Send(ctx, notifier.Notification{
		Kind:  kind,
		Token: user.FCMToken,
		Title: title,
		Body:  body,
		Data:  map[string]string{"request_id": request.ID.String()},
	})
	if err != nil {
		s.logger.Warn("push notification failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *requestService) notifyStaff(ctx context.Context, kind notifier.Kind, title, body string, requestID uuid.UUID) {
	if s.push == nil {
		return
	}
	err := s.push.Send(ctx, notifier.Notification{
		Kind:  kind,
		Title: title,
		Body:  body,
		Data:  map[string]string{"request_id": requestID.String()},
	})
	if err != nil {
		s.logger.Warn("push notification failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *requestService) broadcast(event string, request *model.Request) {
	s.hub.BroadcastEvent(ws.RequestEvent{
		Event:      event,
		RequestID:  request.ID.String(),
		Status:     request.Status.String(),
		TotalItems: request.TotalItems,
	})
}

func toRequestResponse(r *model.Request) RequestResponse {
	res := RequestResponse{
		ID:                   r.ID.String(),
		UserID:               r.UserID.String(),
		Status:               int(r.Status),
		StatusLabel:          r.Status.String(),
		SubmissionDate:       r.SubmissionDate.Format(time.RFC3339),
		TotalItems:           r.TotalItems,
		ScheduledPickupDate:  r.ScheduledPickupDate,
		ProposedDeliveryDate: r.ProposedDeliveryDate,
		RejectionReason:      r.RejectionReason,
		Items:                make([]RequestItemResponse, 0, len(r.Items)),
	}
	if r.User != nil {
		res.UserName = r.User.Name
	}
	for _, item := range r.Items {
		res.Items = append(res.Items, RequestItemResponse{
			BatchID:           item.BatchID.String(),
			Barcode:           item.Barcode,
			Quantity:          item.Quantity,
			RequestedQuantity: item.RequestedQuantity,
		})
	}
	return res
}
