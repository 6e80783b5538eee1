package repository

import (
	"context"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ItemRepository interface {
	FindByQBID(ctx context.Context, ownerID uuid.UUID, qbID string) (*model.Item, error)
	Save(ctx context.Context, item *model.Item) error
	List(ctx context.Context, ownerID uuid.UUID) ([]model.Item, error)
}

type itemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) FindByQBID(ctx context.Context, ownerID uuid.UUID, qbID string) (*model.Item, error) {
	var item model.Item
	if err := GetDB(ctx, r.db).First(&item, "owner_id = ? AND qb_id = ?", ownerID, qbID).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) Save(ctx context.Context, item *model.Item) error {
	return GetDB(ctx, r.db).Save(item).Error
}

func (r *itemRepository) List(ctx context.Context, ownerID uuid.UUID) ([]model.Item, error) {
	var items []model.Item
	if err := GetDB(ctx, r.db).Where("owner_id = ?", ownerID).Order("name").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
