package repository

import (
	"context"

	"backoffice/internal/model"
	"backoffice/pkg/pagination"

	"gorm.io/gorm"
)

// ActivityRepository is append-only: there is no update or delete.
type ActivityRepository interface {
	Log(ctx context.Context, entry *model.ActivityLog) error
	List(ctx context.Context, activityType string, page, limit int) ([]model.ActivityLog, int64, error)
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Log(ctx context.Context, entry *model.ActivityLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *activityRepository) List(ctx context.Context, activityType string, page, limit int) ([]model.ActivityLog, int64, error) {
	var logs []model.ActivityLog
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.ActivityLog{})
	if activityType != "" {
		query = query.Where("type = ?", activityType)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetch := db.Preload("User")
	if activityType != "" {
		fetch = fetch.Where("type = ?", activityType)
	}
	if err := fetch.Order("created_at desc").Scopes(pagination.Paginate(page, limit)).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
