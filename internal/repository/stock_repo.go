package repository

import (
	"context"
	"errors"

	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StockRepository is the sole owner of stock batch mutation. Reserve,
// Release and Consume are guarded single-statement updates: the quantity
// check and the write happen atomically in the database, so concurrent
// submissions against the same batch cannot over-allocate.
type StockRepository interface {
	CreateBatch(ctx context.Context, batch *model.StockBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.StockBatch, error)
	// FindAvailableByProduct returns batches with available units for one
	// product, soonest expiry first, batches without expiry last.
	FindAvailableByProduct(ctx context.Context, barcode string) ([]model.StockBatch, error)
	// FindAvailableByProductForUpdate additionally takes row locks; must be
	// called inside a transaction.
	FindAvailableByProductForUpdate(ctx context.Context, barcode string) ([]model.StockBatch, error)
	Reserve(ctx context.Context, batchID uuid.UUID, qty int) error
	Release(ctx context.Context, batchID uuid.UUID, qty int) error
	Consume(ctx context.Context, batchID uuid.UUID, qty int) error
	// ListProductsWithStock returns distinct barcodes that still have
	// available units, ordered by barcode, strictly after the given one.
	ListProductsWithStock(ctx context.Context, afterBarcode string, limit int) ([]string, error)
	FindAvailableByProducts(ctx context.Context, barcodes []string) ([]model.StockBatch, error)
}

type stockRepository struct {
	db *gorm.DB
}

func NewStockRepository(db *gorm.DB) StockRepository {
	return &stockRepository{db: db}
}

func (r *stockRepository) CreateBatch(ctx context.Context, batch *model.StockBatch) error {
	return GetDB(ctx, r.db).Create(batch).Error
}

func (r *stockRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.StockBatch, error) {
	var batch model.StockBatch
	if err := GetDB(ctx, r.db).First(&batch, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("stock.FindByID", err)
	}
	return &batch, nil
}

func (r *stockRepository) FindAvailableByProduct(ctx context.Context, barcode string) ([]model.StockBatch, error) {
	return r.findAvailable(GetDB(ctx, r.db), barcode)
}

func (r *stockRepository) FindAvailableByProductForUpdate(ctx context.Context, barcode string) ([]model.StockBatch, error) {
	db := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findAvailable(db, barcode)
}

func (r *stockRepository) findAvailable(db *gorm.DB, barcode string) ([]model.StockBatch, error) {
	var batches []model.StockBatch
	err := db.
		Where("barcode = ? AND quantity - reserved_quantity > 0", barcode).
		Order("expiry_date ASC NULLS LAST").
		Order("created_at ASC").
		Find(&batches).Error
	if err != nil {
		return nil, apperr.Upstream("stock.findAvailable", err)
	}
	return batches, nil
}

func (r *stockRepository) Reserve(ctx context.Context, batchID uuid.UUID, qty int) error {
	if qty <= 0 {
		return apperr.ErrInsufficientStock
	}
	res := GetDB(ctx, r.db).Model(&model.StockBatch{}).
		Where("id = ? AND quantity - reserved_quantity >= ?", batchID, qty).
		UpdateColumn("reserved_quantity", gorm.Expr("reserved_quantity + ?", qty))
	return r.checkGuarded(ctx, res, batchID, "stock.Reserve")
}

func (r *stockRepository) Release(ctx context.Context, batchID uuid.UUID, qty int) error {
	if qty <= 0 {
		return apperr.ErrInsufficientStock
	}
	res := GetDB(ctx, r.db).Model(&model.StockBatch{}).
		Where("id = ? AND reserved_quantity >= ?", batchID, qty).
		UpdateColumn("reserved_quantity", gorm.Expr("reserved_quantity - ?", qty))
	return r.checkGuarded(ctx, res, batchID, "stock.Release")
}

func (r *stockRepository) Consume(ctx context.Context, batchID uuid.UUID, qty int) error {
	if qty <= 0 {
		return apperr.ErrInsufficientStock
	}
	res := GetDB(ctx, r.db).Model(&model.StockBatch{}).
		Where("id = ? AND quantity >= ? AND reserved_quantity >= ?", batchID, qty, qty).
		UpdateColumns(map[string]interface{}{
			"quantity":          gorm.Expr("quantity - ?", qty),
			"reserved_quantity": gorm.Expr("reserved_quantity - ?", qty),
		})
	return r.checkGuarded(ctx, res, batchID, "stock.Consume")
}

// checkGuarded maps a zero-row guarded update to the right business error:
// the batch either does not exist or cannot satisfy the adjustment. Either
// way it is left unchanged.
func (r *stockRepository) checkGuarded(ctx context.Context, res *gorm.DB, batchID uuid.UUID, op string) error {
	if res.Error != nil {
		return apperr.Upstream(op, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := GetDB(ctx, r.db).Model(&model.StockBatch{}).Where("id = ?", batchID).Count(&count).Error; err != nil {
		return apperr.Upstream(op, err)
	}
	if count == 0 {
		return apperr.ErrNotFound
	}
	return apperr.ErrInsufficientStock
}

func (r *stockRepository) ListProductsWithStock(ctx context.Context, afterBarcode string, limit int) ([]string, error) {
	var barcodes []string
	db := GetDB(ctx, r.db).Model(&model.StockBatch{}).
		Select("barcode").
		Where("quantity - reserved_quantity > 0")
	if afterBarcode != "" {
		db = db.Where("barcode > ?", afterBarcode)
	}
	err := db.Group("barcode").Order("barcode ASC").Limit(limit).Pluck("barcode", &barcodes).Error
	if err != nil {
		return nil, apperr.Upstream("stock.ListProductsWithStock", err)
	}
	return barcodes, nil
}

func (r *stockRepository) FindAvailableByProducts(ctx context.Context, barcodes []string) ([]model.StockBatch, error) {
	if len(barcodes) == 0 {
		return nil, nil
	}
	var batches []model.StockBatch
	err := GetDB(ctx, r.db).
		Where("barcode IN ? AND quantity - reserved_quantity > 0", barcodes).
		Order("expiry_date ASC NULLS LAST").
		Find(&batches).Error
	if err != nil {
		return nil, apperr.Upstream("stock.FindAvailableByProducts", err)
	}
	return batches, nil
}
