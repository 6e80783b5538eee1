package repository

import (
	"context"
	"time"

	"backoffice/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IntegrationRepository interface {
	FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*model.Integration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Integration, error)
	ListActive(ctx context.Context, provider string) ([]model.Integration, error)
	ListActiveByRealm(ctx context.Context, realmID string) ([]model.Integration, error)
	Save(ctx context.Context, integration *model.Integration) error
	UpdateTokens(ctx context.Context, id uuid.UUID, access, refresh string, expiry *time.Time) error
	MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	Disconnect(ctx context.Context, userID uuid.UUID, provider string) (bool, error)
}

type integrationRepository struct {
	db *gorm.DB
}

func NewIntegrationRepository(db *gorm.DB) IntegrationRepository {
	return &integrationRepository{db: db}
}

func (r *integrationRepository) FindByUserAndProvider(ctx context.Context, userID uuid.UUID, provider string) (*model.Integration, error) {
	var integration model.Integration
	if err := GetDB(ctx, r.db).First(&integration, "user_id = ? AND provider = ?", userID, provider).Error; err != nil {
		return nil, err
	}
	return &integration, nil
}

func (r *integrationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Integration, error) {
	var integrations []model.Integration
	if err := GetDB(ctx, r.db).Where("user_id = ?", userID).Order("provider").Find(&integrations).Error; err != nil {
		return nil, err
	}
	return integrations, nil
}

func (r *integrationRepository) ListActive(ctx context.Context, provider string) ([]model.Integration, error) {
	var integrations []model.Integration
	err := GetDB(ctx, r.db).
		Where("provider = ? AND is_active = ? AND access_token <> ''", provider, true).
		Order("created_at").
		Find(&integrations).Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

func (r *integrationRepository) ListActiveByRealm(ctx context.Context, realmID string) ([]model.Integration, error) {
	var integrations []model.Integration
	err := GetDB(ctx, r.db).
		Where("provider = ? AND realm_id = ? AND is_active = ?", model.ProviderQuickBooks, realmID, true).
		Find(&integrations).Error
	if err != nil {
		return nil, err
	}
	return integrations, nil
}

// Save inserts or fully updates the row; callers load by (user, provider) first to keep it unique.
func (r *integrationRepository) Save(ctx context.Context, integration *model.Integration) error {
	return GetDB(ctx, r.db).Save(integration).Error
}

func (r *integrationRepository) UpdateTokens(ctx context.Context, id uuid.UUID, access, refresh string, expiry *time.Time) error {
	return GetDB(ctx, r.db).Model(&model.Integration{}).Where("id = ?", id).Updates(map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"token_expiry":  expiry,
	}).Error
}

func (r *integrationRepository) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	return GetDB(ctx, r.db).Model(&model.Integration{}).Where("id = ?", id).Update("last_sync_at", at).Error
}

// Disconnect clears the tokens and deactivates the row. It reports whether a row existed.
func (r *integrationRepository) Disconnect(ctx context.Context, userID uuid.UUID, provider string) (bool, error) {
	result := GetDB(ctx, r.db).Model(&model.Integration{}).
		Where("user_id = ? AND provider = ?", userID, provider).
		Updates(map[string]interface{}{
			"access_token":  "",
			"refresh_token": "",
			"token_expiry":  nil,
			"is_active":     false,
		})
	return result.RowsAffected > 0, result.Error
}
