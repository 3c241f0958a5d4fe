package service

import (
	"context"
	"time"

	"foodshare-backend/internal/model"
	"foodshare-backend/internal/repository"
	"foodshare-backend/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DTOs

type AddStockRequest struct {
	Barcode            string     `json:"barcode" binding:"required"`
	Name               string     `json:"name" binding:"required"`
	Brand              string     `json:"brand"`
	Category           int        `json:"category" binding:"gte=0"`
	ImageURL           string     `json:"image_url"`
	EstimatedUnitValue string     `json:"estimated_unit_value"`
	Quantity           int        `json:"quantity" binding:"required,gt=0"`
	ExpiryDate         *time.Time `json:"expiry_date"`
	// CampaignName ties the intake to a donation drive for reporting
	CampaignName string `json:"campaign_name"`
}

type BatchResponse struct {
	ID               string     `json:"id"`
	Barcode          string     `json:"barcode"`
	Quantity         int        `json:"quantity"`
	ReservedQuantity int        `json:"reserved_quantity"`
	Available        int        `json:"available"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
}

// RequestableItem is the aggregated read model shown to beneficiaries: one
// row per product across all its batches with available stock.
type RequestableItem struct {
	Barcode        string          `json:"barcode"`
	Name           string          `json:"name"`
	Brand          string          `json:"brand"`
	Category       int             `json:"category"`
	ImageURL       string          `json:"image_url"`
	TotalAvailable int             `json:"total_available"`
	NearestExpiry  *time.Time      `json:"nearest_expiry,omitempty"`
	Batches        []BatchResponse `json:"batches"`
}

type CreateCampaignRequest struct {
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

type CatalogService interface {
	// ListRequestableItems pages over products with available stock. The
	// cursor keys on the product, so one product never splits across
	// pages; repeated calls until hasMore=false yield every product with
	// available stock exactly once.
	ListRequestableItems(ctx context.Context, pageSize int, cursorToken string) (items []RequestableItem, nextCursor string, hasMore bool, err error)
	GetProducts(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error)
	// AddStock registers the product if unknown and creates a new batch.
	// Emits an add_item audit entry carrying the campaign reference.
	AddStock(ctx context.Context, actorID uuid.UUID, req AddStockRequest) (BatchResponse, error)
	CreateCampaign(ctx context.Context, actorID uuid.UUID, req CreateCampaignRequest) (*model.Campaign, error)
	ListCampaigns(ctx context.Context) ([]model.Campaign, error)
}

type catalogService struct {
	stockRepo    repository.StockRepository
	productRepo  repository.ProductRepository
	campaignRepo repository.CampaignRepository
	txManager    repository.TransactionManager
	audit        AuditService
	logger       *zap.Logger
}

func NewCatalogService(
	stockRepo repository.StockRepository,
	productRepo repository.ProductRepository,
	campaignRepo repository.CampaignRepository,
	txManager repository.TransactionManager,
	audit AuditService,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		stockRepo:    stockRepo,
		productRepo:  productRepo,
		campaignRepo: campaignRepo,
		txManager:    txManager,
		audit:        audit,
		logger:       logger,
	}
}

func (s *catalogService) ListRequestableItems(ctx context.Context, pageSize int, cursorToken string) ([]RequestableItem, string, bool, error) {
	if pageSize <= 0 {
		pageSize = pagination.DefaultLimit
	}

	cursor, err := pagination.Decode(cursorToken)
	if err != nil {
		return nil, "", false, err
	}

	barcodes, err := s.stockRepo.ListProductsWithStock(ctx, cursor.LastKey, pageSize+1)
	if err != nil {
		return nil, "", false, err
	}
	barcodes, hasMore := pagination.CutPage(barcodes, pageSize)
	if len(barcodes) == 0 {
		return []RequestableItem{}, "", false, nil
	}

	batches, err := s.stockRepo.FindAvailableByProducts(ctx, barcodes)
	if err != nil {
		return nil, "", false, err
	}
	products, err := s.productRepo.FindByBarcodes(ctx, barcodes)
	if err != nil {
		return nil, "", false, err
	}
	productsByBarcode := make(map[string]model.Product, len(products))
	for _, p := range products {
		productsByBarcode[p.Barcode] = p
	}

	grouped := make(map[string][]model.StockBatch, len(barcodes))
	for _, b := range batches {
		grouped[b.Barcode] = append(grouped[b.Barcode], b)
	}

	items := make([]RequestableItem, 0, len(barcodes))
	for _, barcode := range barcodes {
		productBatches := grouped[barcode]
		if len(productBatches) == 0 {
			// Stock was consumed between the two queries; the product no
			// longer has anything to offer.
			continue
		}

		item := RequestableItem{
			Barcode: barcode,
			Batches: make([]BatchResponse, 0, len(productBatches)),
		}
		if p, ok := productsByBarcode[barcode]; ok {
			item.Name = p.Name
			item.Brand = p.Brand
			item.Category = int(p.Category)
			item.ImageURL = p.ImageURL
		}

		// Batches arrive expiry ASC NULLS LAST, so the first dated batch
		// with available stock carries the nearest expiry.
		for _, b := range productBatches {
			item.TotalAvailable += b.Available()
			if item.NearestExpiry == nil && b.ExpiryDate != nil {
				item.NearestExpiry = b.ExpiryDate
			}
			item.Batches = append(item.Batches, BatchResponse{
				ID:               b.ID.String(),
				Barcode:          b.Barcode,
				Quantity:         b.Quantity,
				ReservedQuantity: b.ReservedQuantity,
				Available:        b.Available(),
				ExpiryDate:       b.ExpiryDate,
			})
		}
		items = append(items, item)
	}

	nextCursor := ""
	if hasMore {
		nextCursor = pagination.AfterKey(barcodes[len(barcodes)-1]).Encode()
	}
	return items, nextCursor, hasMore, nil
}

func (s *catalogService) GetProducts(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	return s.productRepo.List(ctx, page, limit, search)
}

func (s *catalogService) AddStock(ctx context.Context, actorID uuid.UUID, req AddStockRequest) (BatchResponse, error) {
	unitValue := decimal.Zero
	if req.EstimatedUnitValue != "" {
		if parsed, err := decimal.NewFromString(req.EstimatedUnitValue); err == nil {
			unitValue = parsed
		}
	}

	batch := model.StockBatch{
		Barcode:    req.Barcode,
		Quantity:   req.Quantity,
		ExpiryDate: req.ExpiryDate,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		product := model.Product{
			Barcode:            req.Barcode,
			Name:               req.Name,
			Brand:              req.Brand,
			Category:           model.ProductCategory(req.Category),
			ImageURL:           req.ImageURL,
			EstimatedUnitValue: unitValue,
		}
		if err := s.productRepo.Upsert(txCtx, &product); err != nil {
			return err
		}
		return s.stockRepo.CreateBatch(txCtx, &batch)
	})
	if err != nil {
		return BatchResponse{}, err
	}

	// The add_item entry is what the campaign report joins on. Audit is
	// best-effort: a failed write is logged, never surfaced.
	details := map[string]interface{}{
		"barcode":  req.Barcode,
		"name":     req.Name,
		"quantity": req.Quantity,
		"batch_id": batch.ID.String(),
	}
	if req.CampaignName != "" {
		details["campaign_id"] = req.CampaignName
	}
	if err := s.audit.Record(ctx, &actorID, model.ActionAddItem, details); err != nil {
		s.logger.Warn("failed to record add_item audit entry", zap.Error(err))
	}

	return BatchResponse{
		ID:               batch.ID.String(),
		Barcode:          batch.Barcode,
		Quantity:         batch.Quantity,
		ReservedQuantity: batch.ReservedQuantity,
		Available:        batch.Available(),
		ExpiryDate:       batch.ExpiryDate,
	}, nil
}

func (s *catalogService) CreateCampaign(ctx context.Context, actorID uuid.UUID, req CreateCampaignRequest) (*model.Campaign, error) {
	campaign := &model.Campaign{
		Name:        req.Name,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *catalogService) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	return s.campaignRepo.List(ctx)
}
