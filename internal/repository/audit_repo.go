package repository

import (
	"context"
	"time"

	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/apperr"

	"gorm.io/gorm"
)

// AuditRepository appends and queries the append-only audit trail. There is
// deliberately no update or delete.
type AuditRepository interface {
	Append(ctx context.Context, entry *model.AuditLog) error
	// ListByDateRange returns entries in [start, end], newest first. Nil
	// bounds are open.
	ListByDateRange(ctx context.Context, start, end *time.Time) ([]model.AuditLog, error)
	// ListByActionAndCampaign filters entries of one action whose details
	// carry the given campaign reference.
	ListByActionAndCampaign(ctx context.Context, action, campaignRef string) ([]model.AuditLog, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *auditRepository) ListByDateRange(ctx context.Context, start, end *time.Time) ([]model.AuditLog, error) {
	var logs []model.AuditLog

	db := GetDB(ctx, r.db).Preload("User")
	if start != nil {
		db = db.Where("created_at >= ?", *start)
	}
	if end != nil {
		db = db.Where("created_at <= ?", *end)
	}
	if err := db.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, apperr.Upstream("audit.ListByDateRange", err)
	}
	return logs, nil
}

func (r *auditRepository) ListByActionAndCampaign(ctx context.Context, action, campaignRef string) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	err := GetDB(ctx, r.db).
		Where("action = ? AND details::jsonb ->> 'campaign_id' = ?", action, campaignRef).
		Order("created_at DESC").
		Find(&logs).Error
	if err != nil {
		return nil, apperr.Upstream("audit.ListByActionAndCampaign", err)
	}
	return logs, nil
}
