package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DatabaseConnectionRepository interface {
	Create(ctx context.Context, conn *model.DatabaseConnection) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.DatabaseConnection, error)
	List(ctx context.Context) ([]model.DatabaseConnection, error)
	ListAutoSync(ctx context.Context) ([]model.DatabaseConnection, error)
	Save(ctx context.Context, conn *model.DatabaseConnection) error
	RecordSync(ctx context.Context, id uuid.UUID, status string, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

type databaseConnectionRepository struct {
	db *gorm.DB
}

func NewDatabaseConnectionRepository(db *gorm.DB) DatabaseConnectionRepository {
	return &databaseConnectionRepository{db: db}
}

func (r *databaseConnectionRepository) Create(ctx context.Context, conn *model.DatabaseConnection) error {
	return GetDB(ctx, r.db).Create(conn).Error
}

func (r *databaseConnectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.DatabaseConnection, error) {
	var conn model.DatabaseConnection
	if err := GetDB(ctx, r.db).First(&conn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *databaseConnectionRepository) List(ctx context.Context) ([]model.DatabaseConnection, error) {
	var conns []model.DatabaseConnection
	if err := GetDB(ctx, r.db).Order("name").Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *databaseConnectionRepository) ListAutoSync(ctx context.Context) ([]model.DatabaseConnection, error) {
	var conns []model.DatabaseConnection
	if err := GetDB(ctx, r.db).Where("auto_sync = ? AND is_active = ?", true, true).Find(&conns).Error; err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *databaseConnectionRepository) Save(ctx context.Context, conn *model.DatabaseConnection) error {
	return GetDB(ctx, r.db).Save(conn).Error
}

func (r *databaseConnectionRepository) RecordSync(ctx context.Context, id uuid.UUID, status string, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.DatabaseConnection{}).Where("id = ?", id).Updates(map[string]interface{}{
		"last_sync_at":     at,
		"last_sync_status": status,
	}).Error
}

func (r *databaseConnectionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.DatabaseConnection{})
	return result.RowsAffected > 0, result.Error
}
