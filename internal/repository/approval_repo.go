package repository

import (
	"context"
	"time"

	"backoffice/internal/model"
	"backoffice/pkg/pagination"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ApprovalRepository interface {
	Create(ctx context.Context, approval *model.PendingApproval) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PendingApproval, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.PendingApproval, error)
	List(ctx context.Context, status string, page, limit int) ([]model.PendingApproval, int64, error)
	Decide(ctx context.Context, id uuid.UUID, status string, approverID uuid.UUID, reason string, at time.Time) (bool, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) Create(ctx context.Context, approval *model.PendingApproval) error {
	return GetDB(ctx, r.db).Create(approval).Error
}

func (r *approvalRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PendingApproval, error) {
	var approval model.PendingApproval
	if err := GetDB(ctx, r.db).First(&approval, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &approval, nil
}

func (r *approvalRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.PendingApproval, error) {
	var approval model.PendingApproval
	if err := GetDB(ctx, r.db).Preload("Submitter").Preload("Approver").First(&approval, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &approval, nil
}

func (r *approvalRepository) List(ctx context.Context, status string, page, limit int) ([]model.PendingApproval, int64, error) {
	var approvals []model.PendingApproval
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.PendingApproval{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetchQuery := db.Preload("Submitter").Preload("Approver")
	if status != "" {
		fetchQuery = fetchQuery.Where("status = ?", status)
	}
	if err := fetchQuery.Order("created_at DESC").Scopes(pagination.Paginate(page, limit)).Find(&approvals).Error; err != nil {
		return nil, 0, err
	}

	return approvals, total, nil
}

// Decide moves a PENDING approval to a terminal status with a single conditional UPDATE.
// It reports false when the row was not pending, so concurrent deciders cannot both win.
func (r *approvalRepository) Decide(ctx context.Context, id uuid.UUID, status string, approverID uuid.UUID, reason string, at time.Time) (bool, error) {
	result := GetDB(ctx, r.db).Model(&model.PendingApproval{}).
		Where("id = ? AND status = ?", id, model.ApprovalPending).
		Updates(map[string]interface{}{
			"status":      status,
			"approved_by": approverID,
			"decided_at":  at,
			"reason":      reason,
			"updated_at":  at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
