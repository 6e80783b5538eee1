package model

import (
	"time"

	"github.com/google/uuid"
)

// Providers an Integration can point at
const (
	ProviderQuickBooks     = "quickbooks"
	ProviderGoogleCalendar = "google_calendar"
)

// Integration is a stored OAuth credential set for one external provider per user.
// Rows are never hard-deleted: disconnecting clears the tokens and flips IsActive.
type Integration struct {
	Base
	UserID       uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_integration_user_provider" json:"user_id"`
	Provider     string     `gorm:"type:varchar(30);not null;uniqueIndex:idx_integration_user_provider" json:"provider"`
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	TokenExpiry  *time.Time `json:"token_expiry"`
	RealmID      *string    `gorm:"type:varchar(64);index" json:"realm_id"`
	IsActive     bool       `gorm:"not null;default:false;index" json:"is_active"`
	LastSyncAt   *time.Time `json:"last_sync_at"`
}

// Connected reports whether the integration can be used for provider calls.
func (i *Integration) Connected() bool {
	return i != nil && i.IsActive && i.AccessToken != ""
}
