package repository

import (
	"context"
	"errors"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	// Claim stores the change, or adopts the stored row of an earlier delivery
	// that failed or never finished. It reports false when the change is settled.
	Claim(ctx context.Context, event *model.WebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time, outcome, procErr string) error
}

type webhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Claim(ctx context.Context, event *model.WebhookEvent) (bool, error) {
	db := GetDB(ctx, r.db)

	var existing model.WebhookEvent
	err := db.Where("realm_id = ? AND entity_name = ? AND entity_id = ? AND operation = ? AND last_updated = ?",
		event.RealmID, event.EntityName, event.EntityID, event.Operation, event.LastUpdated).
		First(&existing).Error
	if err == nil {
		if existing.Settled() {
			return false, nil
		}
		event.ID = existing.ID
		return true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	if err := db.Create(event).Error; err != nil {
		// Lost a race with a concurrent delivery of the same change
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time, outcome, procErr string) error {
	return GetDB(ctx, r.db).Model(&model.WebhookEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processed_at": at,
		"outcome":      outcome,
		"error":        procErr,
	}).Error
}
