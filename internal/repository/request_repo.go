package repository

import (
	"context"
	"errors"
	"time"

	"foodshare-backend/internal/model"
	"foodshare-backend/pkg/apperr"
	"foodshare-backend/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RequestRepository interface {
	Create(ctx context.Context, request *model.Request) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error)
	// FindByIDForUpdate locks the request row for the duration of the
	// surrounding transaction so status transitions serialize.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*model.Request, error)
	Save(ctx context.Context, request *model.Request) error
	// ListBySubmissionDesc returns up to limit requests before the
	// (before, beforeID) keyset bound, newest first with id breaking
	// timestamp ties. A nil before starts from the newest row; a Nil
	// beforeID degrades to a plain timestamp bound.
	ListBySubmissionDesc(ctx context.Context, before *time.Time, beforeID uuid.UUID, limit int) ([]model.Request, error)
	ListByUser(ctx context.Context, userID uuid.UUID, before *time.Time, beforeID uuid.UUID, limit int) ([]model.Request, error)
	CountByStatus(ctx context.Context, status model.RequestStatus) (int64, error)
}

type requestRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRequestRepository(db *gorm.DB, logger *zap.Logger) RequestRepository {
	return &requestRepository{db: db, logger: logger}
}

func (r *requestRepository) Create(ctx context.Context, request *model.Request) error {
	return GetDB(ctx, r.db).Create(request).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var request model.Request
	if err := GetDB(ctx, r.db).Preload("Items").Preload("User").First(&request, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("request.FindByID", err)
	}
	return &request, nil
}

func (r *requestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	var request model.Request
	err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&request, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("request.FindByIDForUpdate", err)
	}

	// Items are loaded separately: FOR UPDATE cannot be combined with the
	// preload join, and item rows never change after submission.
	if err := GetDB(ctx, r.db).Where("request_id = ?", id).Find(&request.Items).Error; err != nil {
		return nil, apperr.Upstream("request.FindByIDForUpdate", err)
	}
	return &request, nil
}

func (r *requestRepository) FindByIdempotencyKey(ctx context.Context, key string) (*model.Request, error) {
	var request model.Request
	if err := GetDB(ctx, r.db).Preload("Items").First(&request, "idempotency_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Upstream("request.FindByIdempotencyKey", err)
	}
	return &request, nil
}

func (r *requestRepository) Save(ctx context.Context, request *model.Request) error {
	return GetDB(ctx, r.db).Omit("Items", "User").Save(request).Error
}

func (r *requestRepository) ListBySubmissionDesc(ctx context.Context, before *time.Time, beforeID uuid.UUID, limit int) ([]model.Request, error) {
	return r.listDesc(ctx, nil, before, beforeID, limit)
}

func (r *requestRepository) ListByUser(ctx context.Context, userID uuid.UUID, before *time.Time, beforeID uuid.UUID, limit int) ([]model.Request, error) {
	return r.listDesc(ctx, &userID, before, beforeID, limit)
}

// listDesc serves the ordered keyset query, degrading to an unordered fetch
// with a client-side sort when the store cannot satisfy the ordered query.
// The degraded path preserves ordering and pagination semantics at
// full-scan cost.
func (r *requestRepository) listDesc(ctx context.Context, userID *uuid.UUID, before *time.Time, beforeID uuid.UUID, limit int) ([]model.Request, error) {
	var requests []model.Request

	db := GetDB(ctx, r.db).Preload("Items").Preload("User")
	if userID != nil {
		db = db.Where("user_id = ?", *userID)
	}
	if before != nil {
		// Compound keyset: rows sharing the boundary timestamp are kept
		// when their id is below the boundary id, so no row is skipped.
		if beforeID != uuid.Nil {
			db = db.Where("(submission_date, id) < (?, ?)", *before, beforeID)
		} else {
			db = db.Where("submission_date < ?", *before)
		}
	}
	err := db.Order("submission_date DESC").Order("id DESC").Limit(limit).Find(&requests).Error
	if err == nil {
		return requests, nil
	}

	r.logger.Warn("ordered request query failed, falling back to client-side sort", zap.Error(err))

	fallback := GetDB(ctx, r.db).Preload("Items").Preload("User")
	if userID != nil {
		fallback = fallback.Where("user_id = ?", *userID)
	}
	if err := fallback.Find(&requests).Error; err != nil {
		return nil, apperr.Upstream("request.listDesc", err)
	}

	var beforeKey string
	if beforeID != uuid.Nil {
		beforeKey = beforeID.String()
	}
	at := func(req model.Request) time.Time { return req.SubmissionDate }
	key := func(req model.Request) string { return req.ID.String() }
	requests = pagination.FilterBefore(requests, before, beforeKey, at, key)
	pagination.SortTimeDesc(requests, at, key)
	if len(requests) > limit {
		requests = requests[:limit]
	}
	return requests, nil
}

func (r *requestRepository) CountByStatus(ctx context.Context, status model.RequestStatus) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Request{}).Where("status = ?", status).Count(&count).Error
	if err != nil {
		return 0, apperr.Upstream("request.CountByStatus", err)
	}
	return count, nil
}
