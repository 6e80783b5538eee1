package service

import (
	"context"
	"encoding/json"
	"fmt"

	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ActivityService appends to and reads the audit trail. Writes join the caller's transaction.
type ActivityService interface {
	Record(ctx context.Context, userID *uuid.UUID, activityType, description string, metadata map[string]interface{}) error
	List(ctx context.Context, activityType string, page, limit int) ([]model.ActivityLog, int64, error)
}

type activityService struct {
	repo repository.ActivityRepository
}

func NewActivityService(repo repository.ActivityRepository) ActivityService {
	return &activityService{repo: repo}
}

func (s *activityService) Record(ctx context.Context, userID *uuid.UUID, activityType, description string, metadata map[string]interface{}) error {
	entry := &model.ActivityLog{
		UserID:      userID,
		Type:        activityType,
		Description: description,
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("failed to encode activity metadata: %w", err)
		}
		entry.Metadata = datatypes.JSON(raw)
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write activity log: %w", err)
	}
	return nil
}

func (s *activityService) List(ctx context.Context, activityType string, page, limit int) ([]model.ActivityLog, int64, error) {
	return s.repo.List(ctx, activityType, page, limit)
}

func userRef(id uuid.UUID) *uuid.UUID {
	return &id
}
