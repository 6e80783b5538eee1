package service

import (
	"errors"
	"fmt"

	"backoffice/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// notFound maps a missing row onto the domain taxonomy and passes other errors through
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domain.ErrValidationFailed, field)
	}
	return id, nil
}
