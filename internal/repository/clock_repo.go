package repository

import (
	"context"

	"backoffice/internal/model"
	"backoffice/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClockRepository interface {
	Create(ctx context.Context, entry *model.ClockEntry) error
	FindActive(ctx context.Context, userID uuid.UUID) (*model.ClockEntry, error)
	Save(ctx context.Context, entry *model.ClockEntry) error
	RecordCalendarSync(ctx context.Context, id uuid.UUID, eventID *string, status, syncErr string) error
	ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ClockEntry, int64, error)
}

type clockRepository struct {
	db *gorm.DB
}

func NewClockRepository(db *gorm.DB) ClockRepository {
	return &clockRepository{db: db}
}

func (r *clockRepository) Create(ctx context.Context, entry *model.ClockEntry) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

// FindActive returns the user's open entry (clock_out unset)
func (r *clockRepository) FindActive(ctx context.Context, userID uuid.UUID) (*model.ClockEntry, error) {
	var entry model.ClockEntry
	if err := GetDB(ctx, r.db).First(&entry, "user_id = ? AND clock_out IS NULL", userID).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *clockRepository) Save(ctx context.Context, entry *model.ClockEntry) error {
	return GetDB(ctx, r.db).Save(entry).Error
}

// RecordCalendarSync writes only the mirror columns so it cannot clobber a
// concurrent clock-out. A nil eventID leaves the stored event id alone.
func (r *clockRepository) RecordCalendarSync(ctx context.Context, id uuid.UUID, eventID *string, status, syncErr string) error {
	updates := map[string]interface{}{
		"calendar_sync_status": status,
		"calendar_sync_error":  syncErr,
	}
	if eventID != nil {
		updates["calendar_event_id"] = *eventID
	}
	return GetDB(ctx, r.db).Model(&model.ClockEntry{}).Where("id = ?", id).Updates(updates).Error
}

func (r *clockRepository) ListByUser(ctx context.Context, userID uuid.UUID, page, limit int) ([]model.ClockEntry, int64, error) {
	var entries []model.ClockEntry
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.ClockEntry{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Where("user_id = ?", userID).Order("clock_in DESC").Scopes(pagination.Paginate(page, limit)).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
