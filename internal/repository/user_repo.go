package repository

import (
	"context"
	"errors"

	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateFCMToken(ctx context.Context, id uuid.UUID, token string) error
	// IncrementAbsence bumps the no-show counter atomically
	IncrementAbsence(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page, limit int) ([]model.User, int64, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("user.FindByID", err)
	}
	return &user, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("user.FindByEmail", err)
	}
	return &user, nil
}

func (r *userRepository) UpdateFCMToken(ctx context.Context, id uuid.UUID, token string) error {
	return GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).
		UpdateColumn("fcm_token", token).Error
}

func (r *userRepository) IncrementAbsence(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).
		UpdateColumn("absence_count", gorm.Expr("absence_count + 1")).Error
}

func (r *userRepository) List(ctx context.Context, page, limit int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	db := GetDB(ctx, r.db).Model(&model.User{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, apperr.Upstream("user.List", err)
	}

	offset := (page - 1) * limit
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, apperr.Upstream("user.List", err)
	}
	return users, total, nil
}
