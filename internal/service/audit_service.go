package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"foodshare-backend/internal/model"
	"foodshare-backend/internal/repository"
	"foodshare-backend/pkg/apperr"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DTOs

type AuditLogResponse struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id,omitempty"`
	UserName  string                 `json:"user_name"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details"`
	CreatedAt string                 `json:"created_at"`
}

// CampaignProductResponse is one row of the campaign intake report: an
// add_item audit entry joined with catalog metadata.
type CampaignProductResponse struct {
	Barcode  string `json:"barcode"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	ImageURL string `json:"image_url"`
	Quantity int    `json:"quantity"`
	AddedAt  string `json:"added_at"`
	AddedBy  string `json:"added_by"`
}

// ErrUnknownAuditAction is returned when an action outside the fixed set is
// submitted to the audit API.
var ErrUnknownAuditAction = errors.New("unknown audit action")

type AuditService interface {
	// Record appends one audit entry. The action must belong to the fixed
	// action set; the acting user's name is resolved and denormalized at
	// write time.
	Record(ctx context.Context, actorID *uuid.UUID, action string, details map[string]interface{}) error
	List(ctx context.Context, start, end *time.Time) ([]AuditLogResponse, error)
	CampaignProducts(ctx context.Context, campaignID uuid.UUID) ([]CampaignProductResponse, error)
}

type auditService struct {
	auditRepo    repository.AuditRepository
	userRepo     repository.UserRepository
	campaignRepo repository.CampaignRepository
	productRepo  repository.ProductRepository
	logger       *zap.Logger
}

func NewAuditService(
	auditRepo repository.AuditRepository,
	userRepo repository.UserRepository,
	campaignRepo repository.CampaignRepository,
	productRepo repository.ProductRepository,
	logger *zap.Logger,
) AuditService {
	return &auditService{
		auditRepo:    auditRepo,
		userRepo:     userRepo,
		campaignRepo: campaignRepo,
		productRepo:  productRepo,
		logger:       logger,
	}
}

func (s *auditService) Record(ctx context.Context, actorID *uuid.UUID, action string, details map[string]interface{}) error {
	if !model.IsValidAuditAction(action) {
		return ErrUnknownAuditAction
	}

	userName := ""
	if actorID != nil {
		if user, err := s.userRepo.FindByID(ctx, *actorID); err == nil {
			userName = user.Name
		}
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return apperr.Upstream("audit.Record", err)
	}

	entry := &model.AuditLog{
		UserID:   actorID,
		UserName: userName,
		Action:   action,
		Details:  string(raw),
	}
	if err := s.auditRepo.Append(ctx, entry); err != nil {
		return apperr.Upstream("audit.Record", err)
	}
	return nil
}

func (s *auditService) List(ctx context.Context, start, end *time.Time) ([]AuditLogResponse, error) {
	logs, err := s.auditRepo.ListByDateRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userName := l.UserName
		if userName == "" && l.User != nil {
			userName = l.User.Name
		}

		userID := ""
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		var details map[string]interface{}
		if err := json.Unmarshal([]byte(l.Details), &details); err != nil {
			details = map[string]interface{}{"raw": l.Details}
		}

		res = append(res, AuditLogResponse{
			ID:        l.ID.String(),
			UserID:    userID,
			UserName:  userName,
			Action:    l.Action,
			Details:   details,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		})
	}
	return res, nil
}

func (s *auditService) CampaignProducts(ctx context.Context, campaignID uuid.UUID) ([]CampaignProductResponse, error) {
	campaign, err := s.campaignRepo.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	// Intake entries store the campaign NAME under the campaign_id detail
	// key. Kept for compatibility with existing audit rows; campaigns with
	// colliding names will mix their reports.
	logs, err := s.auditRepo.ListByActionAndCampaign(ctx, model.ActionAddItem, campaign.Name)
	if err != nil {
		return nil, err
	}

	type intake struct {
		barcode  string
		quantity int
		addedAt  time.Time
		addedBy  string
	}

	intakes := make([]intake, 0, len(logs))
	barcodes := make([]string, 0, len(logs))
	for _, l := range logs {
		var details struct {
			Barcode  string `json:"barcode"`
			Quantity int    `json:"quantity"`
		}
		if err := json.Unmarshal([]byte(l.Details), &details); err != nil || details.Barcode == "" {
			s.logger.Warn("skipping malformed add_item audit entry", zap.String("id", l.ID.String()))
			continue
		}
		intakes = append(intakes, intake{
			barcode:  details.Barcode,
			quantity: details.Quantity,
			addedAt:  l.CreatedAt,
			addedBy:  l.UserName,
		})
		barcodes = append(barcodes, details.Barcode)
	}

	products, err := s.productRepo.FindByBarcodes(ctx, barcodes)
	if err != nil {
		return nil, err
	}
	byBarcode := make(map[string]model.Product, len(products))
	for _, p := range products {
		byBarcode[p.Barcode] = p
	}

	res := make([]CampaignProductResponse, 0, len(intakes))
	for _, in := range intakes {
		row := CampaignProductResponse{
			Barcode:  in.barcode,
			Quantity: in.quantity,
			AddedAt:  in.addedAt.Format(time.RFC3339),
			AddedBy:  in.addedBy,
		}
		if p, ok := byBarcode[in.barcode]; ok {
			row.Name = p.Name
			row.Brand = p.Brand
			row.ImageURL = p.ImageURL
		}
		res = append(res, row)
	}
	return res, nil
}
