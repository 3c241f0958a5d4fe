package service

import (
	"context"

	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/apperr"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DistributionStats summarizes what actually left the shelves: completed
// pickups only, valued at the catalog's estimated unit value.
type DistributionStats struct {
	CompletedRequests int64           `json:"completed_requests"`
	TotalUnits        int64           `json:"total_units"`
	EstimatedValue    decimal.Decimal `json:"estimated_value"`
	TopProducts       []ProductStat   `json:"top_products"`
}

type ProductStat struct {
	Barcode        string          `json:"barcode"`
	Name           string          `json:"name"`
	Units          int64           `json:"units"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
}

type StatsService interface {
	Distribution(ctx context.Context) (DistributionStats, error)
}

type statsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) StatsService {
	return &statsService{db: db}
}

func (s *statsService) Distribution(ctx context.Context) (DistributionStats, error) {
	stats := DistributionStats{
		EstimatedValue: decimal.Zero,
		TopProducts:    []ProductStat{},
	}

	err := s.db.WithContext(ctx).Model(&model.Request{}).
		Where("status = ?", model.StatusCompleted).
		Count(&stats.CompletedRequests).Error
	if err != nil {
		return stats, apperr.Upstream("stats.Distribution", err)
	}

	type row struct {
		Barcode string
		Name    string
		Units   int64
		Value   decimal.Decimal
	}
	var rows []row
	err = s.db.WithContext(ctx).Raw(`
		SELECT p.barcode,
		       p.name,
		       SUM(ri.quantity)                          AS units,
		       SUM(ri.quantity * p.estimated_unit_value) AS value
		FROM request_items ri
		JOIN requests r ON r.id = ri.request_id
		JOIN products p ON p.barcode = ri.barcode
		WHERE r.status = ?
		GROUP BY p.barcode, p.name
		ORDER BY units DESC
		LIMIT 10`, model.StatusCompleted).Scan(&rows).Error
	if err != nil {
		return stats, apperr.Upstream("stats.Distribution", err)
	}

	for _, r := range rows {
		stats.TopProducts = append(stats.TopProducts, ProductStat{
			Barcode:        r.Barcode,
			Name:           r.Name,
			Units:          r.Units,
			EstimatedValue: r.Value,
		})
	}

	type totals struct {
		Units int64
		Value decimal.Decimal
	}
	var t totals
	err = s.db.WithContext(ctx).Raw(`
		SELECT COALESCE(SUM(ri.quantity), 0)                          AS units,
		       COALESCE(SUM(ri.quantity * p.estimated_unit_value), 0) AS value
		FROM request_items ri
		JOIN requests r ON r.id = ri.request_id
		JOIN products p ON p.barcode = ri.barcode
		WHERE r.status = ?`, model.StatusCompleted).Scan(&t).Error
	if err != nil {
		return stats, apperr.Upstream("stats.Distribution", err)
	}
	stats.TotalUnits = t.Units
	stats.EstimatedValue = t.Value

	return stats, nil
}
