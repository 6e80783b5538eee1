package model

import "time"

// Webhook change outcomes. A change that failed or never finished is applied again on redelivery.
const (
	WebhookApplied = "applied"
	WebhookSkipped = "skipped"
	WebhookFailed  = "failed"
)

// WebhookEvent records one entity change from the accounting provider.
// The composite unique index keeps one row per change across redeliveries.
type WebhookEvent struct {
	Base
	RealmID     string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_webhook_change" json:"realm_id"`
	EntityName  string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_webhook_change" json:"entity_name"`
	EntityID    string     `gorm:"type:varchar(64);not null;uniqueIndex:idx_webhook_change" json:"entity_id"`
	Operation   string     `gorm:"type:varchar(20);not null;uniqueIndex:idx_webhook_change" json:"operation"`
	LastUpdated time.Time  `gorm:"not null;uniqueIndex:idx_webhook_change" json:"last_updated"`
	ProcessedAt *time.Time `json:"processed_at"`
	Outcome     string     `gorm:"type:varchar(20)" json:"outcome"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
}

// Settled reports whether the change needs no further work
func (e *WebhookEvent) Settled() bool {
	return e.ProcessedAt != nil && e.Outcome != WebhookFailed
}
