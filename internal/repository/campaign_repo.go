package repository

import (
	"context"
	"errors"

	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CampaignRepository interface {
	Create(ctx context.Context, campaign *model.Campaign) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error)
	List(ctx context.Context) ([]model.Campaign, error)
}

type campaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) Create(ctx context.Context, campaign *model.Campaign) error {
	return GetDB(ctx, r.db).Create(campaign).Error
}

func (r *campaignRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Campaign, error) {
	var campaign model.Campaign
	if err := GetDB(ctx, r.db).First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("campaign.FindByID", err)
	}
	return &campaign, nil
}

func (r *campaignRepository) List(ctx context.Context) ([]model.Campaign, error) {
	var campaigns []model.Campaign
	if err := GetDB(ctx, r.db).Order("created_at DESC").Find(&campaigns).Error; err != nil {
		return nil, apperr.Upstream("campaign.List", err)
	}
	return campaigns, nil
}
