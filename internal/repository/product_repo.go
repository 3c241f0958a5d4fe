package repository

import (
	"context"
	"errors"

	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/apperr"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository interface {
	// Upsert inserts the product or refreshes its metadata if the barcode
	// is already known. Stock intake may see the same product many times.
	Upsert(ctx context.Context, product *model.Product) error
	FindByBarcode(ctx context.Context, barcode string) (*model.Product, error)
	FindByBarcodes(ctx context.Context, barcodes []string) ([]model.Product, error)
	List(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Upsert(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "barcode"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "brand", "category", "image_url", "estimated_unit_value", "updated_at"}),
	}).Create(product).Error
}

func (r *productRepository) FindByBarcode(ctx context.Context, barcode string) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).First(&product, "barcode = ?", barcode).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("product.FindByBarcode", err)
	}
	return &product, nil
}

func (r *productRepository) FindByBarcodes(ctx context.Context, barcodes []string) ([]model.Product, error) {
	if len(barcodes) == 0 {
		return nil, nil
	}
	var products []model.Product
	if err := GetDB(ctx, r.db).Where("barcode IN ?", barcodes).Find(&products).Error; err != nil {
		return nil, apperr.Upstream("product.FindByBarcodes", err)
	}
	return products, nil
}

func (r *productRepository) List(ctx context.Context, page, limit int, search string) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	db := GetDB(ctx, r.db).Model(&model.Product{})
	if search != "" {
		db = db.Where("name ILIKE ?", "%"+search+"%")
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, apperr.Upstream("product.List", err)
	}

	offset := (page - 1) * limit
	if err := db.Order("name ASC").Offset(offset).Limit(limit).Find(&products).Error; err != nil {
		return nil, 0, apperr.Upstream("product.List", err)
	}

	return products, total, nil
}
